package friend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/engine"
)

// ErrFriendNotFound indicates an id with no record in the directory.
var ErrFriendNotFound = errors.New("friend not found")

// ChangeKind classifies a directory mutation.
type ChangeKind uint8

const (
	ChangeReset ChangeKind = iota
	ChangeAdded
	ChangeRemoved
	ChangePatched
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeReset:
		return "reset"
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangePatched:
		return "patched"
	default:
		return fmt.Sprintf("change(%d)", uint8(k))
	}
}

// Change describes one mutation. Before is zero for ChangeAdded and After is
// zero for ChangeRemoved; ChangeReset carries neither.
type Change struct {
	Kind     ChangeKind
	FriendID uint32
	Before   Friend
	After    Friend
	Fields   []string
}

// CameOnline reports a connection tier transition from none to anything else.
func (c Change) CameOnline() bool {
	switch c.Kind {
	case ChangePatched:
		return !c.Before.IsOnline() && c.After.IsOnline()
	case ChangeAdded:
		return c.After.IsOnline()
	}
	return false
}

// Directory is the canonical friend list.
type Directory struct {
	mu           sync.RWMutex
	friends      map[uint32]*Friend
	listeners    []func(Change)
	timeProvider TimeProvider
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return NewDirectoryWithTimeProvider(defaultTimeProvider)
}

// NewDirectoryWithTimeProvider creates an empty directory with a custom clock.
func NewDirectoryWithTimeProvider(tp TimeProvider) *Directory {
	if tp == nil {
		tp = defaultTimeProvider
	}
	return &Directory{
		friends:      make(map[uint32]*Friend),
		timeProvider: tp,
	}
}

// OnChange registers fn to run after every mutation. Listeners run on the
// mutating goroutine with no lock held.
func (d *Directory) OnChange(fn func(Change)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

func (d *Directory) notify(c Change) {
	d.mu.RLock()
	listeners := append([]func(Change){}, d.listeners...)
	d.mu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// ApplyFullList replaces the directory wholesale.
func (d *Directory) ApplyFullList(list []Friend) {
	d.mu.Lock()
	d.friends = make(map[uint32]*Friend, len(list))
	for i := range list {
		f := list[i]
		d.friends[f.ID] = &f
	}
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "ApplyFullList",
		"count":    len(list),
	}).Info("Friend list loaded")

	d.notify(Change{Kind: ChangeReset})
}

// ApplyPatch merges p into the record for id and reports whether a record
// was updated. A patch for an absent id is a stale event: it is logged and
// ignored. An empty patch changes nothing and notifies no one.
func (d *Directory) ApplyPatch(id uint32, p Patch) bool {
	if p.IsEmpty() {
		return false
	}
	d.mu.Lock()
	f, ok := d.friends[id]
	if !ok {
		d.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":  "ApplyPatch",
			"friend_id": id,
			"fields":    p.Fields(),
		}).Warn("Ignoring update for unknown friend")
		return false
	}
	before := *f
	p.apply(f, d.timeProvider.Now())
	after := *f
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "ApplyPatch",
		"friend_id": id,
		"fields":    p.Fields(),
	}).Debug("Friend updated")

	d.notify(Change{Kind: ChangePatched, FriendID: id, Before: before, After: after, Fields: p.Fields()})
	return true
}

// Add inserts f. An existing record with the same id is replaced, since the
// engine only reuses an id after the previous friend was removed.
func (d *Directory) Add(f Friend) {
	d.mu.Lock()
	if old, exists := d.friends[f.ID]; exists {
		logrus.WithFields(logrus.Fields{
			"function":       "Add",
			"friend_id":      f.ID,
			"old_public_key": old.PublicKey.Short(),
			"new_public_key": f.PublicKey.Short(),
		}).Warn("Replacing friend record with reused id")
	}
	if f.LastSeen.IsZero() {
		f.LastSeen = d.timeProvider.Now()
	}
	rec := f
	d.friends[f.ID] = &rec
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Add",
		"friend_id":  f.ID,
		"public_key": f.PublicKey.Short(),
	}).Info("Friend added")

	d.notify(Change{Kind: ChangeAdded, FriendID: f.ID, After: f})
}

// Remove deletes the record for id and returns it.
func (d *Directory) Remove(id uint32) (Friend, bool) {
	d.mu.Lock()
	f, ok := d.friends[id]
	if ok {
		delete(d.friends, id)
	}
	d.mu.Unlock()

	if !ok {
		return Friend{}, false
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Remove",
		"friend_id":  id,
		"public_key": f.PublicKey.Short(),
	}).Info("Friend removed")

	d.notify(Change{Kind: ChangeRemoved, FriendID: id, Before: *f})
	return *f, true
}

// Get returns a copy of the record for id.
func (d *Directory) Get(id uint32) (Friend, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.friends[id]
	if !ok {
		return Friend{}, false
	}
	return *f, true
}

// FindByPublicKey returns the friend with pk, if any.
func (d *Directory) FindByPublicKey(pk engine.PublicKey) (Friend, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, f := range d.friends {
		if f.PublicKey == pk {
			return *f, true
		}
	}
	return Friend{}, false
}

// IncrementUnread bumps the unread counter and returns the new value.
// Listeners see a ChangePatched with the "unread" field.
func (d *Directory) IncrementUnread(id uint32) (int, error) {
	return d.updateUnread(id, func(n int) int { return n + 1 })
}

// ResetUnread clears the unread counter. Listeners are notified only if
// the counter was not already zero.
func (d *Directory) ResetUnread(id uint32) error {
	_, err := d.updateUnread(id, func(int) int { return 0 })
	return err
}

func (d *Directory) updateUnread(id uint32, fn func(int) int) (int, error) {
	d.mu.Lock()
	f, ok := d.friends[id]
	if !ok {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", ErrFriendNotFound, id)
	}
	before := *f
	f.Unread = fn(f.Unread)
	after := *f
	d.mu.Unlock()

	if before.Unread != after.Unread {
		d.notify(Change{Kind: ChangePatched, FriendID: id, Before: before, After: after, Fields: []string{"unread"}})
	}
	return after.Unread, nil
}

// Len returns the number of friends.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.friends)
}

// SortedView returns copies of all friends: online before offline, then by
// name, then by id.
func (d *Directory) SortedView() []Friend {
	d.mu.RLock()
	out := make([]Friend, 0, len(d.friends))
	for _, f := range d.friends {
		out = append(out, *f)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func less(a, b Friend) bool {
	if a.IsOnline() != b.IsOnline() {
		return a.IsOnline()
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}
