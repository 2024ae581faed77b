// Package file implements the client's transfer table: the set of file
// transfers currently in flight with friends.
//
// # Overview
//
// The package provides two primary components:
//
//   - Transfer: one position-addressed file exchange. It owns the open file
//     handle and records direction, state and byte counters.
//   - Manager: the registry of active transfers keyed by (friend id, file id).
//     File ids are scoped per friend and are reused by the engine once a
//     transfer ends, so lookups always use both halves of the key.
//
// # Receiving
//
// The engine delivers chunks with an explicit position. Data is written at
// that offset, never appended, so chunks arriving in any order reconstruct
// the file:
//
//	t := file.NewIncoming(friendID, fileID, path, name, size, false)
//	if err := t.Open(); err != nil {
//	    // local failure, reject the offer
//	}
//	manager.Add(t)
//	...
//	t.WriteAt(position, data)
//	...
//	manager.Complete(friendID, fileID) // on the zero length chunk
//
// # Sending
//
// The receiver paces an outgoing transfer. Each chunk request names a
// position and length; the sender reads exactly that range:
//
//	data, err := t.ReadAt(position, length)
//
// A request with zero length ends the transfer.
//
// # Transfer States
//
//	TransferStatePending    // registered, file not open yet
//	TransferStateRunning    // file open, chunks flowing
//	TransferStatePaused     // peer paused; resumes to Running
//	TransferStateCompleted  // zero length chunk or request seen
//	TransferStateCancelled  // cancelled locally or by the peer
//	TransferStateError      // local I/O failure
//
// Every path out of Running closes the file handle. Manager.CloseAll closes
// whatever is left when the session shuts down.
//
// # File names
//
// Peer supplied names are never used as paths directly. SanitizeFileName
// strips separators, and avatars are always stored under AvatarFileName,
// derived from the sender's public key.
package file
