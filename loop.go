package toxclient

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/friend"
)

// Run drives the engine until ctx is cancelled or Shutdown is called. It
// returns nil after Shutdown and ctx.Err() after cancellation.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.State() != StateRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	if c.looping {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.looping = true
	c.mu.Unlock()

	defer close(c.loopDone)

	logrus.WithFields(logrus.Fields{
		"function": "Run",
		"interval": c.eng.IterationInterval(),
	}).Info("Event loop started")

	timer := time.NewTimer(c.eng.IterationInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.WithField("function", "Run").Info("Event loop cancelled")
			return ctx.Err()
		case <-c.stop:
			logrus.WithField("function", "Run").Info("Event loop stopped")
			return nil
		case <-timer.C:
		}

		c.tick()
		timer.Reset(c.eng.IterationInterval())
	}
}

// tick runs queued commands, then one engine iteration, then dispatches
// its events in order.
func (c *Client) tick() {
	c.drainCommands()

	var events []engine.Event
	func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"function": "tick",
					"panic":    fmt.Sprint(r),
				}).Error("Recovered from panic in engine iteration")
			}
		}()
		events = c.eng.Iterate()
	}()

	for _, ev := range events {
		c.dispatch(ev)
	}

	c.sweepStalled()
}

func (c *Client) drainCommands() {
	for {
		select {
		case cmd := <-c.commands:
			cmd()
		default:
			return
		}
	}
}

// dispatch handles one event. A panic is logged and swallowed so the
// remaining events of the tick still run.
func (c *Client) dispatch(ev engine.Event) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "dispatch",
				"event_kind": ev.Kind(),
				"panic":      fmt.Sprint(r),
			}).Error("Recovered from panic while handling event")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"function":   "dispatch",
		"event_kind": ev.Kind(),
	}).Debug("Handling event")

	switch e := ev.(type) {
	case engine.SelfConnectionStatus:
		c.handleSelfConnection(e)
	case engine.FriendRequest:
		c.handleFriendRequest(e)
	case engine.FriendMessage:
		c.handleFriendMessage(e)
	case engine.FriendName:
		c.friends.ApplyPatch(e.FriendID, friend.NamePatch(e.Name))
	case engine.FriendStatusMessage:
		c.friends.ApplyPatch(e.FriendID, friend.StatusMessagePatch(e.Message))
	case engine.FriendStatus:
		c.friends.ApplyPatch(e.FriendID, friend.StatusPatch(e.Status))
	case engine.FriendConnectionStatus:
		c.friends.ApplyPatch(e.FriendID, friend.ConnectionPatch(e.Status))
	case engine.FileRecv:
		c.handleFileRecv(e)
	case engine.FileRecvChunk:
		c.handleFileRecvChunk(e)
	case engine.FileChunkRequest:
		c.handleFileChunkRequest(e)
	case engine.FileRecvControl:
		c.handleFileRecvControl(e)
	default:
		logrus.WithFields(logrus.Fields{
			"function":   "dispatch",
			"event_kind": ev.Kind(),
		}).Warn("Unhandled event")
	}
}

// do queues fn for the loop goroutine and waits for its result.
func (c *Client) do(ctx context.Context, fn func() error) error {
	if c.State() != StateRunning {
		return ErrNotRunning
	}

	done := make(chan error, 1)
	cmd := func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"function": "do",
					"panic":    fmt.Sprint(r),
				}).Error("Recovered from panic in command")
				done <- fmt.Errorf("command panicked: %v", r)
			}
		}()
		done <- fn()
	}

	select {
	case c.commands <- cmd:
	case <-c.stop:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-c.loopDone:
		select {
		case err := <-done:
			return err
		default:
			return ErrNotRunning
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
