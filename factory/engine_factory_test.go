package factory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/engine/sim"
)

func TestSimulationModeCreatesSimEngine(t *testing.T) {
	f := NewEngineFactory(true)
	assert.True(t, f.IsUsingSimulation())

	eng, err := f.Create(engine.Options{})
	require.NoError(t, err)
	defer eng.Close()

	_, ok := eng.(*sim.Engine)
	assert.True(t, ok, "expected *sim.Engine, got %T", eng)
}

func TestSimulationModeRestoresSaveData(t *testing.T) {
	f := NewEngineFactory(true)
	first, err := f.Create(engine.Options{})
	require.NoError(t, err)
	data, err := first.SaveData()
	require.NoError(t, err)

	second, err := f.Create(engine.Options{SaveData: data})
	require.NoError(t, err)
	assert.Equal(t, first.SelfPublicKey(), second.SelfPublicKey())
}

func TestSetUseSimulation(t *testing.T) {
	f := NewEngineFactory(false)
	assert.False(t, f.IsUsingSimulation())

	f.SetUseSimulation(true)
	assert.True(t, f.IsUsingSimulation())
}

func TestWithConstructorOverrides(t *testing.T) {
	boom := errors.New("boom")
	var got engine.Options
	f := WithConstructor(func(opts engine.Options) (engine.Engine, error) {
		got = opts
		return nil, boom
	})

	_, err := f.Create(engine.Options{UDPEnabled: true})
	assert.ErrorIs(t, err, boom)
	assert.True(t, got.UDPEnabled)
}
