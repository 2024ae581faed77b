// Package limits provides the size limits the client enforces before handing
// data to the engine or writing it to disk.
//
// # Limits
//
//   - MaxPlaintextMessage (1372 bytes): the largest chat message the Tox
//     protocol carries in one packet. Outgoing messages are validated against
//     it before the engine is called.
//
//   - MaxAvatarSize (20 MiB): the default ceiling for incoming avatar
//     transfers. Larger offers are rejected without opening a file. The
//     configured value (fileTransfers.maxAvatarSize) overrides it.
//
//   - MaxNotificationLength (200 bytes): message previews sent to desktop
//     notifications are cut to this length with Truncate.
//
//   - MaxFileNameLength (255 bytes): peer supplied file names longer than this
//     are refused, matching common filesystem limits.
//
// Non-avatar transfers have no size ceiling.
//
// # Validation
//
//	if err := limits.ValidatePlaintextMessage([]byte(text)); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
package limits
