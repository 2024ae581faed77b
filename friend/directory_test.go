package friend

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxclient/engine"
)

func TestApplyPatchUnknownFriendIsNoop(t *testing.T) {
	d := NewDirectory()
	d.Add(Friend{ID: 1, Name: "Alice"})

	var changes []Change
	d.OnChange(func(c Change) { changes = append(changes, c) })

	assert.False(t, d.ApplyPatch(7, NamePatch("ghost")))
	assert.Empty(t, changes)
	assert.Equal(t, 1, d.Len())
	_, ok := d.Get(7)
	assert.False(t, ok)
}

func TestFriend42Scenario(t *testing.T) {
	d := NewDirectory()
	d.Add(Friend{ID: 42, PublicKey: testKey(42)})

	require.True(t, d.ApplyPatch(42, StatusMessagePatch("")))
	require.True(t, d.ApplyPatch(42, NamePatch("Bob")))

	f, ok := d.Get(42)
	require.True(t, ok)
	assert.Equal(t, "Bob", f.Name)
	assert.Equal(t, "", f.StatusMessage)
	assert.Equal(t, engine.ConnectionNone, f.ConnectionStatus)
}

// Fields not mentioned by a patch keep whatever an earlier patch set.
func TestPatchRetainsUnmentionedFields(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	names := []string{"Alice", "Bob", "carol", ""}
	msgs := []string{"away for lunch", "", "hi"}

	for round := 0; round < 50; round++ {
		d := NewDirectory()
		d.Add(Friend{ID: 3})
		want := Friend{ID: 3}

		for step := 0; step < 30; step++ {
			var p Patch
			switch rng.Intn(4) {
			case 0:
				p = NamePatch(names[rng.Intn(len(names))])
				want.Name = *p.Name
			case 1:
				p = StatusMessagePatch(msgs[rng.Intn(len(msgs))])
				want.StatusMessage = *p.StatusMessage
			case 2:
				p = StatusPatch(engine.UserStatus(rng.Intn(3)))
				want.Status = *p.Status
			case 3:
				p = ConnectionPatch(engine.ConnectionStatus(rng.Intn(3)))
				want.ConnectionStatus = *p.ConnectionStatus
			}
			require.True(t, d.ApplyPatch(3, p))

			got, _ := d.Get(3)
			if got.Name != want.Name || got.StatusMessage != want.StatusMessage ||
				got.Status != want.Status || got.ConnectionStatus != want.ConnectionStatus {
				t.Fatalf("round %d step %d: got %+v, want %+v", round, step, got, want)
			}
		}
	}
}

func TestApplyPatchIsIdempotent(t *testing.T) {
	d := NewDirectory()
	d.Add(Friend{ID: 1, Name: "Alice", StatusMessage: "hello"})

	p := StatusPatch(engine.UserStatusBusy)
	d.ApplyPatch(1, p)
	first, _ := d.Get(1)
	d.ApplyPatch(1, p)
	second, _ := d.Get(1)

	assert.Equal(t, first, second)
	assert.Equal(t, "Alice", second.Name)
	assert.Equal(t, "hello", second.StatusMessage)
}

func TestSortedViewOrdering(t *testing.T) {
	d := NewDirectory()
	d.ApplyFullList([]Friend{
		{ID: 1, Name: "bob"},
		{ID: 2, Name: "Zed", ConnectionStatus: engine.ConnectionUDP},
		{ID: 3, Name: "Bob"},
		{ID: 4, Name: "Amy", ConnectionStatus: engine.ConnectionTCP},
		{ID: 5, Name: "Bob"},
	})

	var ids []uint32
	for _, f := range d.SortedView() {
		ids = append(ids, f.ID)
	}
	// Online first (Amy, Zed); then "Bob" < "bob" byte-wise, ties by id.
	assert.Equal(t, []uint32{4, 2, 3, 5, 1}, ids)
}

func TestSortedViewInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	letters := []string{"a", "B", "c", "D", "aa", "Ab", ""}

	for round := 0; round < 100; round++ {
		var list []Friend
		for i := 0; i < 20; i++ {
			list = append(list, Friend{
				ID:               uint32(rng.Intn(1000)),
				Name:             letters[rng.Intn(len(letters))],
				ConnectionStatus: engine.ConnectionStatus(rng.Intn(3)),
			})
		}
		d := NewDirectory()
		d.ApplyFullList(list)
		view := d.SortedView()

		seenOffline := false
		for i, f := range view {
			if !f.IsOnline() {
				seenOffline = true
			} else if seenOffline {
				t.Fatalf("round %d: online friend %d after an offline one", round, f.ID)
			}
			if i > 0 && view[i-1].IsOnline() == f.IsOnline() && view[i-1].Name > f.Name {
				t.Fatalf("round %d: names out of order: %q before %q", round, view[i-1].Name, f.Name)
			}
		}
	}
}

func TestChangeNotifications(t *testing.T) {
	d := NewDirectory()
	var changes []Change
	d.OnChange(func(c Change) { changes = append(changes, c) })

	d.Add(Friend{ID: 1, Name: "Alice"})
	d.ApplyPatch(1, ConnectionPatch(engine.ConnectionTCP))
	d.ApplyPatch(1, ConnectionPatch(engine.ConnectionUDP))
	d.ApplyPatch(1, ConnectionPatch(engine.ConnectionNone))
	d.ApplyPatch(1, ConnectionPatch(engine.ConnectionUDP))
	d.Remove(1)

	require.Len(t, changes, 6)
	assert.Equal(t, ChangeAdded, changes[0].Kind)
	assert.False(t, changes[0].CameOnline())
	assert.True(t, changes[1].CameOnline(), "none -> tcp")
	assert.False(t, changes[2].CameOnline(), "tcp -> udp is not a transition from none")
	assert.False(t, changes[3].CameOnline())
	assert.True(t, changes[4].CameOnline())
	assert.Equal(t, ChangeRemoved, changes[5].Kind)
	assert.Equal(t, "Alice", changes[5].Before.Name)
	assert.Equal(t, []string{"connection_status"}, changes[1].Fields)
}

func TestRemoveAndReuseID(t *testing.T) {
	d := NewDirectory()
	d.Add(Friend{ID: 0, PublicKey: testKey(1), Name: "old"})

	removed, ok := d.Remove(0)
	require.True(t, ok)
	assert.Equal(t, "old", removed.Name)

	_, ok = d.Remove(0)
	assert.False(t, ok)

	d.Add(Friend{ID: 0, PublicKey: testKey(2)})
	f, _ := d.Get(0)
	assert.Equal(t, testKey(2), f.PublicKey)
	assert.Equal(t, "", f.Name, "a reused id must not inherit the old record")
}

func TestFindByPublicKey(t *testing.T) {
	d := NewDirectory()
	d.Add(Friend{ID: 5, PublicKey: testKey(9)})

	f, ok := d.FindByPublicKey(testKey(9))
	require.True(t, ok)
	assert.Equal(t, uint32(5), f.ID)

	_, ok = d.FindByPublicKey(testKey(8))
	assert.False(t, ok)
}

func TestUnreadCounter(t *testing.T) {
	d := NewDirectory()
	d.Add(Friend{ID: 1})

	n, err := d.IncrementUnread(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = d.IncrementUnread(1)
	assert.Equal(t, 2, n)

	require.NoError(t, d.ResetUnread(1))
	f, _ := d.Get(1)
	assert.Equal(t, 0, f.Unread)

	_, err = d.IncrementUnread(99)
	assert.ErrorIs(t, err, ErrFriendNotFound)
}

func TestUnreadChangesNotify(t *testing.T) {
	d := NewDirectory()
	d.Add(Friend{ID: 1, Name: "Alice"})
	var changes []Change
	d.OnChange(func(c Change) { changes = append(changes, c) })

	_, err := d.IncrementUnread(1)
	require.NoError(t, err)
	require.NoError(t, d.ResetUnread(1))
	require.NoError(t, d.ResetUnread(1))

	require.Len(t, changes, 2, "resetting an already clear counter is silent")
	assert.Equal(t, ChangePatched, changes[0].Kind)
	assert.Equal(t, []string{"unread"}, changes[0].Fields)
	assert.Equal(t, 0, changes[0].Before.Unread)
	assert.Equal(t, 1, changes[0].After.Unread)
	assert.Equal(t, 0, changes[1].After.Unread)
}

func TestEmptyPatchIsIgnored(t *testing.T) {
	d := NewDirectory()
	d.Add(Friend{ID: 1, Name: "Alice"})
	notified := false
	d.OnChange(func(Change) { notified = true })

	assert.False(t, d.ApplyPatch(1, Patch{}))
	assert.False(t, notified)
}

func TestConnectionPatchUpdatesLastSeen(t *testing.T) {
	tp := &mockTimeProvider{fixedTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	d := NewDirectoryWithTimeProvider(tp)
	d.Add(Friend{ID: 1})

	tp.fixedTime = tp.fixedTime.Add(time.Hour)
	d.ApplyPatch(1, NamePatch("x"))
	f, _ := d.Get(1)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), f.LastSeen)

	d.ApplyPatch(1, ConnectionPatch(engine.ConnectionUDP))
	f, _ = d.Get(1)
	assert.Equal(t, tp.fixedTime, f.LastSeen)
}

func TestFriendView(t *testing.T) {
	f := Friend{ID: 2, PublicKey: testKey(0xab), Name: "Eve", Status: engine.UserStatusAway, ConnectionStatus: engine.ConnectionUDP, Unread: 3}
	v := f.View()

	assert.Equal(t, uint32(2), v.ID)
	assert.Equal(t, testKey(0xab).Upper(), v.PublicKey)
	assert.Equal(t, "away", v.Status)
	assert.Equal(t, "udp", v.ConnectionStatus)
	assert.True(t, v.Online)
	assert.Equal(t, 3, v.Unread)
	assert.Zero(t, v.LastSeen)

	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.LastSeen = seen
	assert.Equal(t, seen.UnixMilli(), f.View().LastSeen)

	assert.Equal(t, testKey(0xab).Short(), Friend{PublicKey: testKey(0xab)}.DisplayName())
}
