package profiler_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/Carmen-Shannon/oxy-pipe/engine/profiler"
)

func TestEndFrameSwapsCounters(t *testing.T) {
	p := profiler.NewProfiler()
	p.CountSlotBinding()
	p.CountSlotBinding()
	p.CountGPUBinding()
	p.CountDraw()
	p.CountDispatch()
	p.CountValidationFailure()

	want := profiler.FrameStats{SlotBindings: 2, GPUBindings: 1, DrawCalls: 1, Dispatches: 1, ValidationFailures: 1}
	assert.Equal(t, want, p.Current())
	assert.Zero(t, p.LastFrame())

	assert.Equal(t, want, p.EndFrame())
	assert.Equal(t, want, p.LastFrame())
	assert.Zero(t, p.Current())

	p.EndFrame()
	assert.Zero(t, p.LastFrame())
}

func TestTickReportsAfterInterval(t *testing.T) {
	var buf bytes.Buffer
	logger.SetLogger(logger.NewTextLogger(&buf, "info"))
	t.Cleanup(func() { logger.SetLogger(nil) })

	p := profiler.NewProfiler()
	p.SetUpdateInterval(time.Hour)
	assert.False(t, p.Tick())
	assert.Empty(t, buf.String())

	p.SetUpdateInterval(time.Nanosecond)
	p.CountDraw()
	p.EndFrame()
	time.Sleep(time.Millisecond)
	assert.True(t, p.Tick())
	assert.Contains(t, buf.String(), "[Profiler]")
	assert.Contains(t, buf.String(), "draws=1")
}
