package pipe_test

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/native"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/gogpu/gputypes"
)

// testBuffer satisfies every resource interface so one object can move between input and output slots.
type testBuffer struct {
	pipe.BindableBase
	layout     *pipe.VertexLayout
	width      uint32
	height     uint32
	refreshErr error
	refreshes  int
}

func newTestBuffer(name string) *testBuffer {
	b := &testBuffer{
		layout: &pipe.VertexLayout{
			Elements: []pipe.VertexElement{{Semantic: "LOC", SemanticIndex: 0, Format: gputypes.VertexFormatFloat32x3}},
			Stride:   12,
		},
		width:  640,
		height: 480,
	}
	b.SetName(name)
	return b
}

func (b *testBuffer) Refresh(pipe.BindSlot, *pipe.DeviceContext) error {
	b.refreshes++
	return b.refreshErr
}

func (b *testBuffer) NativeHandle() uintptr                    { return 1 }
func (b *testBuffer) VertexLayout() *pipe.VertexLayout         { return b.layout }
func (b *testBuffer) ByteOffset() uint32                       { return 0 }
func (b *testBuffer) IndexFormat() gputypes.IndexFormat        { return gputypes.IndexFormatUint16 }
func (b *testBuffer) ByteSize() uint64                         { return 256 }
func (b *testBuffer) ResourceHandle() uintptr                  { return 2 }
func (b *testBuffer) UnorderedAccessHandle() uintptr           { return 3 }
func (b *testBuffer) RenderTargetHandle() uintptr              { return 4 }
func (b *testBuffer) DepthStencilHandle(readOnly bool) uintptr { return 5 }
func (b *testBuffer) Size() (uint32, uint32)                   { return b.width, b.height }
func (b *testBuffer) Format() gputypes.TextureFormat           { return gputypes.TextureFormatRGBA8Unorm }

type testComposition struct {
	program   *pipe.ShaderProgram
	constants []pipe.BindPoint[pipe.ConstantBuffer]
	resources []pipe.BindPoint[pipe.ShaderResource]
	samplers  []pipe.BindPoint[pipe.Sampler]
	uavs      []pipe.BindPoint[pipe.UnorderedAccess]
}

func (c *testComposition) Program() *pipe.ShaderProgram                           { return c.program }
func (c *testComposition) ConstantBuffers() []pipe.BindPoint[pipe.ConstantBuffer] { return c.constants }
func (c *testComposition) Resources() []pipe.BindPoint[pipe.ShaderResource]       { return c.resources }
func (c *testComposition) Samplers() []pipe.BindPoint[pipe.Sampler]               { return c.samplers }
func (c *testComposition) UnorderedAccess() []pipe.BindPoint[pipe.UnorderedAccess] {
	return c.uavs
}

type testPass struct {
	name       string
	iterations int
	state      pipe.PassState
	stages     map[pipe.ShaderKind]*testComposition
}

func (p *testPass) Name() string                              { return p.name }
func (p *testPass) Iterations() int                           { return p.iterations }
func (p *testPass) State(pipe.StateConditions) pipe.PassState { return p.state }

func (p *testPass) Composition(kind pipe.ShaderKind) pipe.ShaderComposition {
	c, ok := p.stages[kind]
	if !ok {
		return nil
	}
	return c
}

type testMaterial struct {
	name       string
	iterations int
	passes     []*testPass
}

func (m *testMaterial) Name() string                 { return m.name }
func (m *testMaterial) Iterations() int              { return m.iterations }
func (m *testMaterial) PassCount() int               { return len(m.passes) }
func (m *testMaterial) Pass(i int) pipe.MaterialPass { return m.passes[i] }

type testTask struct {
	name        string
	iterations  int
	composition *testComposition
}

func (t *testTask) Name() string    { return t.name }
func (t *testTask) Iterations() int { return t.iterations }

func (t *testTask) Composition() pipe.ShaderComposition {
	if t.composition == nil {
		return nil
	}
	return t.composition
}

func newTestDevice(t *testing.T, options ...pipe.DeviceBuilderOption) (*pipe.Device, *native.Device, *native.Context) {
	t.Helper()
	nd := native.NewDevice()
	options = append([]pipe.DeviceBuilderOption{pipe.WithDebugChecks(true), pipe.WithRecordWorkers(2)}, options...)
	d := pipe.NewDevice(nd, options...)
	t.Cleanup(d.Release)
	return d, nd, nd.ImmediateRecorder()
}

func vertexProgram() *pipe.ShaderProgram {
	return pipe.NewShaderProgram("vs", pipe.ShaderVertex, "vs_main", []byte{0x01}, []pipe.ShaderInput{
		{Semantic: "LOC", SemanticIndex: 0, Format: gputypes.VertexFormatFloat32x3},
	})
}

func pixelProgram() *pipe.ShaderProgram {
	return pipe.NewShaderProgram("ps", pipe.ShaderPixel, "fs_main", []byte{0x02}, nil)
}

func simplePass(name string, vs, ps *pipe.ShaderProgram) *testPass {
	return &testPass{
		name:       name,
		iterations: 1,
		stages: map[pipe.ShaderKind]*testComposition{
			pipe.ShaderVertex: {program: vs},
			pipe.ShaderPixel:  {program: ps},
		},
	}
}

// drawable requests a vertex buffer and a render surface on ctx and returns them.
func drawable(ctx *pipe.DeviceContext) (vb, rt *testBuffer) {
	vb = newTestBuffer("vertices")
	rt = newTestBuffer("target")
	ctx.InputAssembler().SetVertexBuffer(0, vb)
	ctx.OutputMerger().SetSurface(0, rt)
	return vb, rt
}
