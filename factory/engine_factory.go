package factory

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/engine/sim"
	"github.com/opd-ai/toxclient/engine/toxadapter"
)

// EngineFactory creates engines based on configuration.
// It is safe for concurrent use.
type EngineFactory struct {
	mu            sync.RWMutex
	useSimulation bool
	override      engine.Constructor
}

// NewEngineFactory creates a factory producing simulated engines when
// useSimulation is set and toxcore engines otherwise.
func NewEngineFactory(useSimulation bool) *EngineFactory {
	logrus.WithFields(logrus.Fields{
		"function":       "NewEngineFactory",
		"use_simulation": useSimulation,
	}).Info("Created engine factory")

	return &EngineFactory{useSimulation: useSimulation}
}

// WithConstructor returns a factory that always uses c.
func WithConstructor(c engine.Constructor) *EngineFactory {
	return &EngineFactory{override: c}
}

// SetUseSimulation switches between simulated and real engines.
func (f *EngineFactory) SetUseSimulation(useSimulation bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.useSimulation = useSimulation
}

// IsUsingSimulation reports the current mode.
func (f *EngineFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.useSimulation
}

// Constructor returns the engine constructor for the current mode.
func (f *EngineFactory) Constructor() engine.Constructor {
	f.mu.RLock()
	defer f.mu.RUnlock()

	switch {
	case f.override != nil:
		return f.override
	case f.useSimulation:
		return sim.New
	default:
		return toxadapter.New
	}
}

// Create builds an engine with opts.
func (f *EngineFactory) Create(opts engine.Options) (engine.Engine, error) {
	logrus.WithFields(logrus.Fields{
		"function":       "Create",
		"use_simulation": f.IsUsingSimulation(),
		"from_savedata":  len(opts.SaveData) > 0,
	}).Debug("Creating engine")

	return f.Constructor()(opts)
}
