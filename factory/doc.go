// Package factory selects the engine implementation the client runs on.
//
// The client never constructs an engine directly. It asks an EngineFactory,
// which hands out either the toxcore backed adapter or the in-memory
// simulation, so the same session code runs against the real network,
// against scripted tests, and in -simulate demo mode.
//
// # Configuration
//
// The choice comes from the useSimulation setting (environment override
// TOXCLIENT_USE_SIMULATION) and can be changed at runtime:
//
//	f := factory.NewEngineFactory(cfg.UseSimulation)
//	eng, err := f.Create(cfg.EngineOptions())
//
// Tests can substitute any engine.Constructor with WithConstructor.
package factory
