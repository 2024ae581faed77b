// Package toxclient is the session core of a Tox desktop client.
//
// A Client owns one engine instance, the transfer table, the friend
// directory and the message store of a single profile. It drives the
// engine's cooperative loop, turns engine events into directory patches,
// file transfer steps and stored messages, and reports everything that a
// user interface needs to know through a Notifier.
//
// # Getting Started
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := toxclient.New(toxclient.Options{Config: cfg, Notifier: hub})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err) // corrupt profile, engine creation failure
//	}
//
//	go client.Run(ctx)
//	...
//	if err := client.Shutdown(ctx); err != nil {
//	    var se *toxclient.ShutdownError
//	    if errors.As(err, &se) {
//	        log.Printf("failed steps: %v", se.Steps())
//	    }
//	}
//
// # Lifecycle
//
// Start walks Uninitialized, ProfileResolved, EngineCreated and Running.
// Without an explicit profile name the last used profile is loaded, or a
// fresh one is created under a unique name. A saved profile that cannot be
// read or decoded stops Start; it is never replaced by a new identity.
//
// Shutdown stops the loop, closes every open transfer and then saves the
// profile, saves the configuration and closes the message store
// concurrently. All three run even if one fails.
//
// # Event Loop
//
// Run sleeps for the engine's iteration interval, executes queued commands,
// calls Iterate and dispatches the returned events in order. Everything
// that touches client state runs on this one goroutine. A panic while
// handling one event is logged and the loop carries on with the next.
//
// # Commands
//
// Methods such as SendMessage, SendFile or AcceptFriendRequest may be
// called from any goroutine. They are queued and executed by the loop at
// the start of the next tick, and return once the loop has run them.
//
// # File Transfers
//
// Transfers are receiver driven. Incoming offers pass a policy gate
// (reject switches, avatar size ceiling) before a file is opened; chunks are
// written at the position the engine reports. Outgoing data is only read in
// answer to a chunk request. When a friend comes online the local avatar,
// if there is one, is offered to them automatically.
package toxclient
