package toxclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Shutdown step names reported by ShutdownError.
const (
	StepLoop    = "loop"
	StepProfile = "profile"
	StepConfig  = "config"
	StepStore   = "store"
)

// StepError is the failure of one shutdown step.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

// ShutdownError lists the shutdown steps that failed. The other steps
// still ran to completion.
type ShutdownError struct {
	Failed []StepError
}

func (e *ShutdownError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = f.Error()
	}
	return "shutdown: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual step errors to errors.Is and errors.As.
func (e *ShutdownError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}

// Steps returns the names of the failed steps.
func (e *ShutdownError) Steps() []string {
	steps := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		steps[i] = f.Step
	}
	return steps
}

// Shutdown stops the loop, closes every open transfer, then saves the
// profile, saves the configuration and closes the message store
// concurrently, waiting for all three. A failing step does not stop the
// others; failures are returned as a *ShutdownError. If ctx ends before
// the loop stops, that is reported as StepLoop and the remaining steps
// still run. Only the first call does any work; later calls return the
// same result.
func (c *Client) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.shutdown(ctx)
	})
	return c.shutdownErr
}

func (c *Client) shutdown(ctx context.Context) error {
	c.mu.Lock()
	prev := c.State()
	if prev == StateUninitialized || prev == StateTerminated {
		c.setState(StateTerminated)
		c.mu.Unlock()
		close(c.stop)
		close(c.loopDone)
		return nil
	}
	c.setState(StateShuttingDown)
	wasLooping := c.looping
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Shutdown",
		"profile":  c.profile,
	}).Info("Shutting down")

	var failed []StepError
	close(c.stop)
	if !wasLooping {
		close(c.loopDone)
	} else {
		select {
		case <-c.loopDone:
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"function": "Shutdown",
				"error":    ctx.Err().Error(),
			}).Warn("Event loop did not stop in time, saving anyway")
			failed = append(failed, StepError{Step: StepLoop, Err: fmt.Errorf("wait for event loop: %w", ctx.Err())})
		}
	}

	if err := c.transfers.CloseAll(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Shutdown",
			"error":    err.Error(),
		}).Warn("Some transfers did not close cleanly")
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{StepProfile, c.saveProfile},
		{StepConfig, c.cfg.Save},
		{StepStore, c.store.Close},
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		stepFailed []StepError
	)
	for _, step := range steps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := step.run(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Shutdown",
					"step":     step.name,
					"error":    err.Error(),
				}).Error("Shutdown step failed")
				mu.Lock()
				stepFailed = append(stepFailed, StepError{Step: step.name, Err: err})
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	c.eng.Close()
	c.setState(StateTerminated)

	// Report in step order regardless of completion order.
	for _, step := range steps {
		for _, f := range stepFailed {
			if f.Step == step.name {
				failed = append(failed, f)
			}
		}
	}
	if len(failed) > 0 {
		return &ShutdownError{Failed: failed}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Shutdown",
		"profile":  c.profile,
	}).Info("Shutdown complete")
	return nil
}

// IsShutdownStepFailed reports whether err is a *ShutdownError naming step.
func IsShutdownStepFailed(err error, step string) bool {
	var se *ShutdownError
	if !errors.As(err, &se) {
		return false
	}
	for _, s := range se.Steps() {
		if s == step {
			return true
		}
	}
	return false
}
