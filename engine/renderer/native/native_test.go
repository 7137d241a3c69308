package native_test

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/native"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
)

func TestDeferredListReplaysOnImmediate(t *testing.T) {
	d := native.NewDevice()
	nc, err := d.CreateDeferred()
	require.NoError(t, err)
	deferred := nc.(*native.Context)

	viewports := []common.Viewport{common.NewViewport(800, 600)}
	deferred.SetViewports(viewports)
	deferred.SetPrimitiveTopology(pipe.TopologyLineList)
	deferred.Draw(2, 0)
	viewports[0].Width = 1

	list, err := deferred.FinishCommandList()
	require.NoError(t, err)
	assert.Empty(t, deferred.Commands(), "finishing hands the calls to the list")

	imm := d.ImmediateRecorder()
	imm.ExecuteCommandList(list)
	assert.Equal(t, []native.Op{
		native.OpExecuteCommandList,
		native.OpSetViewports,
		native.OpSetPrimitiveTopology,
		native.OpDraw,
	}, imm.Ops())

	vp, ok := imm.Last(native.OpSetViewports)
	require.True(t, ok)
	assert.Equal(t, []common.Viewport{common.NewViewport(800, 600)}, vp.Payload, "recorded slices are copies")
	assert.Equal(t, 2, imm.CountState())
}

func TestCommandListRelease(t *testing.T) {
	d := native.NewDevice()
	nc, err := d.CreateDeferred()
	require.NoError(t, err)
	nc.Dispatch(1, 2, 3)

	list, err := nc.FinishCommandList()
	require.NoError(t, err)
	cl := list.(*native.CommandList)
	assert.Equal(t, 1, cl.Len())
	assert.Equal(t, 1, cl.Count(native.OpDispatch))

	cl.Release()
	assert.True(t, cl.Released())
	assert.ErrorIs(t, cl.Replay(d.Immediate()), native.ErrListReleased)
}

func TestFinishContracts(t *testing.T) {
	d := native.NewDevice()
	_, err := d.Immediate().FinishCommandList()
	assert.ErrorIs(t, err, native.ErrImmediateFinish)

	nc, err := d.CreateDeferred()
	require.NoError(t, err)
	nc.Release()
	_, err = nc.FinishCommandList()
	assert.ErrorIs(t, err, native.ErrContextReleased)
	assert.Equal(t, 1, d.DeferredCount())
}

func TestObjectLifetime(t *testing.T) {
	d := native.NewDevice()

	blend, err := d.CreateBlendState(&pipe.BlendDesc{AlphaToCoverage: true})
	require.NoError(t, err)
	shader, err := d.CreateShader(pipe.ShaderPixel, []byte{1, 2, 3}, "fs_main")
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Live())

	obj := shader.(*native.Object)
	assert.Equal(t, native.KindShader, obj.Kind)
	assert.Equal(t, native.ShaderDesc{Kind: pipe.ShaderPixel, EntryPoint: "fs_main", Size: 3}, obj.Desc)
	assert.Equal(t, pipe.BlendDesc{AlphaToCoverage: true}, blend.(*native.Object).Desc)

	shader.Release()
	shader.Release()
	assert.True(t, obj.Released())
	assert.Equal(t, int64(1), d.Live())
}

func TestCreateFailures(t *testing.T) {
	d := native.NewDevice()

	_, err := d.CreateShader(pipe.ShaderVertex, nil, "vs_main")
	assert.Error(t, err)

	d.FailCreate(native.KindRasterizerState, 2)
	for range 2 {
		_, err = d.CreateRasterizerState(&pipe.RasterizerDesc{})
		assert.ErrorIs(t, err, native.ErrInjected)
	}
	_, err = d.CreateRasterizerState(&pipe.RasterizerDesc{})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Created(native.KindRasterizerState))
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  native.Command
		want string
	}{
		{native.Command{Op: native.OpDraw, Args: []int64{3, 0}}, "Draw[3 0]"},
		{native.Command{Op: native.OpSetShader, Stage: pipe.ShaderPixel}, "SetShader[pixel]"},
		{native.Command{Op: native.OpSetSamplers, Stage: pipe.ShaderVertex, First: 2}, "SetSamplers[vertex@2]"},
		{native.Command{Op: native.OpSetVertexBuffers, First: 1}, "SetVertexBuffers[@1]"},
		{native.Command{Op: native.OpSetBlendFactor, Payload: gputypes.Color{}}, "SetBlendFactor"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cmd.String())
	}
	assert.Equal(t, "Op(200)", native.Op(200).String())
}
