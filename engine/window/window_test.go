package window_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/Carmen-Shannon/oxy-pipe/engine/window"
)

func TestNewWindowNeedsPlatform(t *testing.T) {
	_, err := window.NewWindow()
	assert.ErrorIs(t, err, window.ErrNoPlatform)
}

func TestHeadlessMessageLoop(t *testing.T) {
	w, err := window.NewWindow(window.WithPlatform(window.Headless(3)), window.WithWidth(640), window.WithHeight(480))
	require.NoError(t, err)
	assert.Equal(t, 640, w.Width())
	assert.Equal(t, common.NewViewport(640, 480), w.Viewport())

	updates := 0
	w.SetUpdateCallback(func() { updates++ })
	w.ProcessMessages()
	assert.Equal(t, 3, updates)
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Close())
	assert.Error(t, w.Close())
}

func TestResizeCallbacks(t *testing.T) {
	w, err := window.NewWindow(
		window.WithPlatform(window.Headless(0)),
		window.WithWidth(800),
		window.WithHeight(600),
		window.WithMaxWidth(1024),
		window.WithMinHeight(100),
	)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	var first, second [][2]int
	w.AddResizeCallback(func(width, height int) { first = append(first, [2]int{width, height}) })
	w.AddResizeCallback(func(width, height int) { second = append(second, [2]int{width, height}) })

	w.Resize(2000, 50)
	assert.Equal(t, [][2]int{{1024, 100}}, first, "sizes clamp to the limits")
	assert.Equal(t, first, second)
	assert.Equal(t, 1024, w.Width())
	assert.Equal(t, 100, w.Height())

	w.Resize(1024, 100)
	assert.Len(t, first, 1, "an unchanged size is not reported")
}
