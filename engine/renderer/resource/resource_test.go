package resource_test

import (
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/native"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/resource"
)

func openNoop(t *testing.T) hal.OpenDevice {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	require.NoError(t, err)
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev
}

func newFactory(t *testing.T, withQueue bool) (resource.Factory, *pipe.Device, *native.Context) {
	t.Helper()
	openDev := openNoop(t)
	nd := native.NewDevice()
	pd := pipe.NewDevice(nd, pipe.WithDebugChecks(true))
	t.Cleanup(pd.Release)
	options := []resource.FactoryBuilderOption{resource.WithLabelPrefix("test/")}
	if withQueue {
		options = append(options, resource.WithQueue(openDev.Queue))
	}
	return resource.NewFactory(openDev.Device, pd, options...), pd, nd.ImmediateRecorder()
}

var positionLayout = pipe.VertexLayout{
	Elements: []pipe.VertexElement{{Semantic: "LOC", Format: gputypes.VertexFormatFloat32x3}},
	Stride:   12,
}

func TestBufferCreation(t *testing.T) {
	f, pd, _ := newFactory(t, true)

	vb, err := f.CreateVertexBuffer("quad", positionLayout, make([]byte, 48))
	require.NoError(t, err)
	assert.Equal(t, resource.BufferVertex, vb.Kind())
	assert.Equal(t, uint32(4), vb.Count())
	assert.Equal(t, positionLayout, *vb.VertexLayout())

	ib, err := f.CreateIndexBuffer("quad", gputypes.IndexFormatUint32, make([]byte, 24))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), ib.Stride())
	assert.Equal(t, uint32(6), ib.Count())

	cb, err := f.CreateConstantBuffer("camera", 68)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), cb.ByteSize(), "constant buffers round up to 16 bytes")
	assert.Zero(t, cb.Count())

	sb, err := f.CreateStructuredBuffer("particles", 32, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(320), sb.ByteSize())
	assert.Equal(t, sb.ResourceHandle(), sb.UnorderedAccessHandle())

	assert.Equal(t, int64(48+24+80+320), pd.VRAM())
	assert.Equal(t, 4, f.LiveHandles())

	obj, ok := f.Resolve(vb.NativeHandle())
	require.True(t, ok)
	assert.Implements(t, (*hal.Buffer)(nil), obj)

	_, err = f.CreateVertexBuffer("empty", positionLayout, nil)
	assert.ErrorIs(t, err, resource.ErrInvalidSize)
}

func TestBufferWrites(t *testing.T) {
	f, _, _ := newFactory(t, true)
	cb, err := f.CreateConstantBuffer("params", 16)
	require.NoError(t, err)

	assert.NoError(t, cb.Write(8, make([]byte, 8)))
	assert.ErrorIs(t, cb.Write(12, make([]byte, 8)), resource.ErrOutOfRange)

	other, err := f.CreateConstantBuffer("other", 16)
	require.NoError(t, err)
	require.NoError(t, other.Release())

	err = f.WriteBuffers(
		resource.BufferWrite{Buffer: cb, Data: make([]byte, 16)},
		resource.BufferWrite{Buffer: other, Data: make([]byte, 4)},
		resource.BufferWrite{Buffer: cb, Offset: 16, Data: []byte{1}},
	)
	assert.ErrorIs(t, err, resource.ErrReleased)
	assert.ErrorIs(t, err, resource.ErrOutOfRange)

	noQueue, _, _ := newFactory(t, false)
	b, err := noQueue.CreateConstantBuffer("params", 16)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Write(0, []byte{1}), resource.ErrNoQueue)
}

func TestReleaseGoesThroughQueue(t *testing.T) {
	f, pd, _ := newFactory(t, true)
	vb, err := f.CreateVertexBuffer("quad", positionLayout, make([]byte, 48))
	require.NoError(t, err)
	handle := vb.NativeHandle()

	require.NoError(t, vb.Release())
	assert.Zero(t, pd.VRAM())
	assert.Equal(t, 1, pd.PendingReleases())
	_, ok := f.Resolve(handle)
	assert.True(t, ok, "native objects survive until the queue drains")

	assert.Equal(t, 1, pd.ProcessReleaseQueue())
	_, ok = f.Resolve(handle)
	assert.False(t, ok)
	assert.Zero(t, f.LiveHandles())

	assert.ErrorIs(t, vb.Release(), pipe.ErrAlreadyReleased)
	assert.ErrorIs(t, vb.Write(0, []byte{1}), resource.ErrReleased)
	assert.ErrorIs(t, vb.Refresh(nil, nil), resource.ErrReleased)
}

func TestReleaseFromManyGoroutines(t *testing.T) {
	f, pd, _ := newFactory(t, false)
	buffers := make([]resource.Buffer, 64)
	for i := range buffers {
		b, err := f.CreateStructuredBuffer("b", 4, 4)
		require.NoError(t, err)
		buffers[i] = b
	}
	assert.Equal(t, int64(64*16), pd.VRAM())

	var wg sync.WaitGroup
	for _, b := range buffers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Release())
		}()
	}
	wg.Wait()

	assert.Zero(t, pd.VRAM())
	assert.Equal(t, 64, pd.ProcessReleaseQueue())
	assert.Zero(t, f.LiveHandles())
}

func TestTextureKinds(t *testing.T) {
	f, pd, _ := newFactory(t, true)

	tex, err := f.CreateTexture2D("albedo", resource.TextureDesc{Width: 4, Height: 4, MipLevels: 3})
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatRGBA8Unorm, tex.Format())
	assert.NotZero(t, tex.ResourceHandle())
	assert.Zero(t, tex.RenderTargetHandle())
	assert.Zero(t, tex.UnorderedAccessHandle())
	assert.Equal(t, int64((16+4+1)*4), pd.VRAM(), "every mip level is counted")

	rt, err := f.CreateRenderSurface("hdr", resource.TextureDesc{Width: 8, Height: 2, Format: gputypes.TextureFormatRGBA32Float, Storage: true})
	require.NoError(t, err)
	assert.NotZero(t, rt.RenderTargetHandle())
	assert.NotZero(t, rt.UnorderedAccessHandle())
	w, h := rt.Size()
	assert.Equal(t, [2]uint32{8, 2}, [2]uint32{w, h})

	ds, err := f.CreateDepthSurface("depth", resource.TextureDesc{Width: 8, Height: 2})
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatDepth24PlusStencil8, ds.Format())
	assert.NotZero(t, ds.DepthStencilHandle(false))
	assert.NotZero(t, ds.DepthStencilHandle(true))
	assert.NotEqual(t, ds.DepthStencilHandle(false), ds.DepthStencilHandle(true))

	_, err = f.CreateDepthSurface("bad", resource.TextureDesc{Width: 1, Height: 1, Format: gputypes.TextureFormatRGBA8Unorm})
	assert.ErrorIs(t, err, resource.ErrFormat)
	_, err = f.CreateRenderSurface("bad", resource.TextureDesc{Width: 1, Height: 1, Format: gputypes.TextureFormatDepth32Float})
	assert.ErrorIs(t, err, resource.ErrFormat)
	_, err = f.CreateTexture2D("bad", resource.TextureDesc{Width: 0, Height: 1})
	assert.ErrorIs(t, err, resource.ErrInvalidSize)
}

func TestTextureUpload(t *testing.T) {
	f, _, _ := newFactory(t, true)
	tex, err := f.CreateTexture2D("mask", resource.TextureDesc{Width: 2, Height: 2, Format: gputypes.TextureFormatR8Unorm})
	require.NoError(t, err)
	assert.NoError(t, tex.Upload([]byte{1, 2, 3, 4}))
	assert.ErrorIs(t, tex.Upload([]byte{1, 2}), resource.ErrOutOfRange)
}

func TestResizeRebindsSurface(t *testing.T) {
	f, pd, rec := newFactory(t, false)
	rt, err := f.CreateRenderSurface("target", resource.TextureDesc{Width: 64, Height: 64})
	require.NoError(t, err)
	om := pd.Immediate().OutputMerger()

	om.SetSurface(0, rt)
	om.Refresh()
	om.Refresh()
	assert.Equal(t, 1, rec.Count(native.OpSetRenderTargets))
	before := rt.RenderTargetHandle()

	require.NoError(t, rt.Resize(128, 32))
	assert.Equal(t, uint64(1), rt.Version())
	assert.NotEqual(t, before, rt.RenderTargetHandle())
	assert.Equal(t, int64(128*32*4), pd.VRAM())
	assert.Equal(t, 1, pd.PendingReleases())

	om.Refresh()
	assert.Equal(t, 2, rec.Count(native.OpSetRenderTargets), "a new version is re-sent")
	assert.Equal(t, common.NewViewport(128, 32), om.SurfaceViewport())

	assert.ErrorIs(t, rt.Release(), pipe.ErrStillBound)
	pd.Immediate().ResetBindings()
	assert.NoError(t, rt.Release())
	pd.ProcessReleaseQueue()
	assert.Zero(t, f.LiveHandles())
}

func TestSamplers(t *testing.T) {
	f, pd, _ := newFactory(t, false)
	s, err := f.CreateSampler("linear", resource.DefaultSamplerDesc())
	require.NoError(t, err)
	assert.NotZero(t, s.NativeHandle())
	assert.Equal(t, gputypes.FilterModeLinear, s.Desc().MagFilter)

	require.NoError(t, s.Release())
	assert.Zero(t, s.NativeHandle())
	pd.ProcessReleaseQueue()
	assert.Zero(t, f.LiveHandles())
}

func TestParseSamplerPreset(t *testing.T) {
	tests := []struct {
		name    string
		filter  gputypes.FilterMode
		address gputypes.AddressMode
		wantErr bool
	}{
		{name: "", filter: gputypes.FilterModeLinear, address: gputypes.AddressModeClampToEdge},
		{name: "point-wrap", filter: gputypes.FilterModeNearest, address: gputypes.AddressModeRepeat},
		{name: "linear-mirror", filter: gputypes.FilterModeLinear, address: gputypes.AddressModeMirrorRepeat},
		{name: "repeat", filter: gputypes.FilterModeLinear, address: gputypes.AddressModeRepeat},
		{name: "nearest", filter: gputypes.FilterModeNearest, address: gputypes.AddressModeClampToEdge},
		{name: "cubic-clamp", wantErr: true},
		{name: "linear-border", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := resource.ParseSamplerPreset(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.filter, desc.MinFilter)
			assert.Equal(t, tt.address, desc.AddressV)
		})
	}
}
