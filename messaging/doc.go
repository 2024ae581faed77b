// Package messaging stores the chat history of a profile.
//
// # Overview
//
// Messages are append-only. Each row records the contact the conversation
// belongs to, the public key of whoever wrote it, the text and a timestamp.
// Keys are stored as lowercase hex so a conversation can be found again
// after the friend's numeric id has been reused.
//
//	store, err := messaging.OpenSQLite(ctx, "/data/alice.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	id, err := store.AppendMessage(ctx, friendKey, "hello", selfKey, time.Now())
//	history, err := store.QueryRecentMessages(ctx, friendKey, 20)
//
// QueryRecentMessages returns the newest messages, oldest first.
//
// # Presentation
//
// View converts a stored row into what a conversation pane shows. Messages
// written by the local user carry SelfSenderID instead of a friend id.
package messaging
