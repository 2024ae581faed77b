// Package engine defines the contract between the client and the Tox
// messaging engine.
//
// The engine owns identity, routing, encryption and wire framing. The client
// only drives it: once per loop tick it asks how long to sleep
// (IterationInterval), then calls Iterate and receives the batch of events
// produced during that tick, in the order the engine yielded them.
//
// Every event kind is a concrete struct implementing the sealed Event
// interface, so dispatch is a type switch:
//
//	for _, ev := range eng.Iterate() {
//	    switch e := ev.(type) {
//	    case engine.FileRecvChunk:
//	        handleChunk(e.FriendID, e.FileID, e.Position, e.Data)
//	    case engine.FriendName:
//	        rename(e.FriendID, e.Name)
//	    }
//	}
//
// Two implementations exist: engine/toxadapter wraps github.com/opd-ai/toxcore,
// and engine/sim is an in-memory scriptable engine used by tests and the
// simulation mode of the client.
package engine
