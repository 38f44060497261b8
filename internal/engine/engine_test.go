package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openmined/syncengine/internal/telemetry"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "paused", StatePaused.String())
}

func TestEngine_PauseResume_OnlyTransitionFromExpectedState(t *testing.T) {
	e := &Engine{events: telemetry.NewSink(4)}

	// Pause on a stopped engine is a no-op.
	e.Pause()
	assert.Equal(t, StateStopped, e.State())

	e.state = StateRunning
	e.Pause()
	assert.Equal(t, StatePaused, e.State())

	// Resume on a stopped/running engine is a no-op; only paused resumes.
	e.state = StateStopped
	e.Resume()
	assert.Equal(t, StateStopped, e.State())

	e.state = StatePaused
	e.Resume()
	assert.Equal(t, StateRunning, e.State())
}

func TestEngine_Stop_WhenNeverStarted_IsNoop(t *testing.T) {
	e := &Engine{events: telemetry.NewSink(4)}
	assert.NoError(t, e.Stop())
	assert.Equal(t, StateStopped, e.State())
}

func TestEngine_LastError_DefaultsToNil(t *testing.T) {
	e := &Engine{events: telemetry.NewSink(4)}
	assert.NoError(t, e.LastError())
}
