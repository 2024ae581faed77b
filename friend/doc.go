// Package friend holds the client's view of the friend list.
//
// # Overview
//
// The friend package provides three components:
//
//   - Friend: one contact record (id, public key, name, status message,
//     presence, connection tier, unread counter)
//   - Directory: the canonical set of Friend records, changed only by
//     reconciliation of partial updates from the engine
//   - RequestManager: incoming friend requests awaiting a decision
//
// # Reconciliation
//
// The engine reports friend state as a stream of independent updates (a
// name here, a connection change there). Each becomes a Patch naming only
// the fields it changes; fields not named are left alone:
//
//	name := "Bob"
//	dir.ApplyPatch(42, friend.Patch{Name: &name})
//
// Patches for an id that is not in the directory are stale (the friend was
// removed, or the event raced a reload) and are logged and dropped.
//
// Friend ids are assigned by the engine and reused after removal. Never
// keep an id across a Remove without looking it up again.
//
// # Ordering
//
// SortedView returns friends with a connection before those without, then
// by name (byte order, so case-sensitive), then by id.
//
// # Change notification
//
//	dir.OnChange(func(c friend.Change) {
//	    if c.CameOnline() {
//	        // offer our avatar
//	    }
//	})
//
// # Thread Safety
//
// Directory and RequestManager use sync.RWMutex internally. Friend values
// returned from them are copies.
package friend
