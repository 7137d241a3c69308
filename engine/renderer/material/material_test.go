package material_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/native"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
)

const texturedWGSL = `//@oxy:state blend alpha
//@oxy:iterations 2
//@oxy:include camera

//@oxy:variable 0 0 constants camera
@group(0) @binding(0) var<uniform> camera: Camera;
//@oxy:variable 1 0 texture albedo
@group(1) @binding(0) var albedo: texture_2d<f32>;
//@oxy:variable 1 1 sampler albedo_sampler linear-wrap
@group(1) @binding(1) var albedo_sampler: sampler;

struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) uv: vec2<f32>,
}

struct VertexOutput {
    @builtin(position) clip: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(input: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip = camera.view_proj * vec4<f32>(input.position, 1.0);
    out.uv = input.uv;
    return out;
}

@fragment
fn fs_main(input: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(albedo, albedo_sampler, input.uv);
}
`

const particlesWGSL = `//@oxy:variable 0 0 rw_buffer particles 256
@group(0) @binding(0) var<storage, read_write> particles: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read> weights: array<f32>;

@compute @workgroup_size(64, 1, 1)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    particles[id.x] = particles[id.x] * weights[id.x];
}
`

// badKindWGSL annotates a uniform as a sampler.
const badKindWGSL = `//@oxy:variable 0 0 sampler tint
@group(0) @binding(0) var<uniform> tint: vec4<f32>;

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position, 1.0) * tint;
}
`

type fixture struct {
	device  *pipe.Device
	factory resource.Factory
	lib     shader.Library
	rec     *native.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)
	var openDev hal.OpenDevice
	openDev, err = adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	require.NoError(t, err)
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})

	nd := native.NewDevice()
	pd := pipe.NewDevice(nd, pipe.WithDebugChecks(true))
	t.Cleanup(pd.Release)
	f := resource.NewFactory(openDev.Device, pd, resource.WithQueue(openDev.Queue))

	lib := shader.NewLibrary(shader.NewCompiler())
	_, err = lib.LoadSource("textured", texturedWGSL)
	require.NoError(t, err)
	_, err = lib.LoadSource("particles", particlesWGSL)
	require.NoError(t, err)
	return &fixture{device: pd, factory: f, lib: lib, rec: nd.ImmediateRecorder()}
}

// drawable binds a position/uv vertex buffer and a render surface on the immediate context.
func (fx *fixture) drawable(t *testing.T) {
	t.Helper()
	layout := pipe.VertexLayout{
		Elements: []pipe.VertexElement{
			{Semantic: "LOC", SemanticIndex: 0, Format: gputypes.VertexFormatFloat32x3},
			{Semantic: "LOC", SemanticIndex: 1, Format: gputypes.VertexFormatFloat32x2, Offset: 12},
		},
		Stride: 20,
	}
	quad := []float32{
		-1, -1, 0, 0, 1,
		1, -1, 0, 1, 1,
		1, 1, 0, 1, 0,
		-1, 1, 0, 0, 0,
	}
	vb, err := fx.factory.CreateVertexBuffer("quad", layout, common.SliceToBytes(quad))
	require.NoError(t, err)
	rt, err := fx.factory.CreateRenderSurface("target", resource.TextureDesc{Width: 64, Height: 64})
	require.NoError(t, err)
	ctx := fx.device.Immediate()
	ctx.InputAssembler().SetVertexBuffer(0, vb)
	ctx.OutputMerger().SetSurface(0, rt)
}

func TestFromShaderCreatesVariables(t *testing.T) {
	fx := newFixture(t)
	m, err := material.FromShader("crate", fx.lib, "textured", fx.factory)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, m.Release()) })

	assert.Equal(t, "crate", m.Name())
	assert.Equal(t, 1, m.Iterations())
	require.Equal(t, 1, m.PassCount())
	assert.Equal(t, 2, m.Pass(0).Iterations(), "@oxy:iterations sets the pass count")
	assert.Equal(t, "textured", m.Passes()[0].Shader())

	vars := m.Variables()
	assert.Equal(t, []string{"camera", "albedo", "albedo_sampler"}, vars.Names())

	camera, ok := vars.Get("camera")
	require.True(t, ok)
	assert.Equal(t, material.KindConstants, camera.Kind())
	cb, ok := camera.Value().(resource.Buffer)
	require.True(t, ok)
	assert.Equal(t, uint64(80), cb.ByteSize())

	s, ok := vars.Get("albedo_sampler")
	require.True(t, ok)
	sampler, ok := s.Value().(resource.Sampler)
	require.True(t, ok)
	want, err := resource.ParseSamplerPreset("linear-wrap")
	require.NoError(t, err)
	assert.Equal(t, want, sampler.Desc())

	albedo, ok := vars.Get("albedo")
	require.True(t, ok)
	assert.Equal(t, material.KindTexture, albedo.Kind())
	assert.Nil(t, albedo.Value(), "textures are supplied by the caller")
}

func TestPassCompositions(t *testing.T) {
	fx := newFixture(t)
	m, err := material.FromShader("crate", fx.lib, "textured", fx.factory)
	require.NoError(t, err)
	t.Cleanup(func() { m.Release() })
	p := m.Pass(0)

	assert.Nil(t, p.Composition(pipe.ShaderHull))
	assert.Nil(t, p.Composition(pipe.ShaderGeometry))

	vs := p.Composition(pipe.ShaderVertex)
	require.NotNil(t, vs)
	assert.Same(t, fx.lib.Program("textured", pipe.ShaderVertex), vs.Program())
	require.Len(t, vs.ConstantBuffers(), 1)
	assert.NotNil(t, vs.ConstantBuffers()[0].Value)
	assert.Empty(t, vs.Resources())

	ps := p.Composition(pipe.ShaderPixel)
	require.NotNil(t, ps)
	require.Len(t, ps.Resources(), 1)
	assert.Nil(t, ps.Resources()[0].Value)
	require.Len(t, ps.Samplers(), 1)
	assert.NotNil(t, ps.Samplers()[0].Value)
}

func TestPassStateBanks(t *testing.T) {
	fx := newFixture(t)
	m, err := material.FromShader("crate", fx.lib, "textured", fx.factory)
	require.NoError(t, err)
	t.Cleanup(func() { m.Release() })
	p := m.Passes()[0]

	alpha := fx.device.BlendPreset(pipe.BlendAlpha)
	assert.Same(t, alpha, p.State(pipe.ConditionNone).Blend, "@oxy:state sets the fallback bank")
	assert.Nil(t, p.State(pipe.ConditionNone).Depth)

	wire := pipe.PassState{Rasterizer: fx.device.RasterizerPreset(pipe.RasterWireframe)}
	p.SetState(pipe.ConditionMultisample, wire)
	assert.Equal(t, wire, p.State(pipe.ConditionMultisample))
	assert.Same(t, alpha, p.State(pipe.ConditionScissorTest).Blend, "unmatched conditions use the fallback bank")
}

func TestDrawMaterial(t *testing.T) {
	fx := newFixture(t)
	m, err := material.FromShader("crate", fx.lib, "textured", fx.factory)
	require.NoError(t, err)
	t.Cleanup(func() { m.Release() })
	fx.drawable(t)
	ctx := fx.device.Immediate()

	ctx.BeginDraw(pipe.ConditionNone)
	defer ctx.EndDraw()
	result := ctx.Draw(m, pipe.TopologyTriangleList, 4, 0)
	assert.Equal(t, pipe.ValidationMissingResource, result, "albedo is not set yet")
	assert.Zero(t, fx.rec.Count(native.OpDraw))

	tex, err := fx.factory.CreateTexture2D("albedo", resource.TextureDesc{Width: 4, Height: 4})
	require.NoError(t, err)
	albedo, _ := m.Variables().Get("albedo")
	require.NoError(t, albedo.Set(tex))

	fx.rec.Reset()
	require.Equal(t, pipe.ValidationSuccessful, ctx.Draw(m, pipe.TopologyTriangleList, 4, 0))
	assert.Equal(t, 2, fx.rec.Count(native.OpDraw), "the pass draws twice")
	assert.Equal(t, 1, fx.rec.Count(native.OpSetShaderResources))
	assert.Zero(t, fx.rec.Count(native.OpSetSamplers), "the sampler was bound by the failed draw")
}

func TestVariableKindChecks(t *testing.T) {
	fx := newFixture(t)
	m, err := material.FromShader("crate", fx.lib, "textured", fx.factory)
	require.NoError(t, err)
	t.Cleanup(func() { m.Release() })

	camera, _ := m.Variables().Get("camera")
	sampler, _ := m.Variables().Get("albedo_sampler")
	assert.ErrorIs(t, sampler.Set(camera.Value()), material.ErrKindMismatch)
	assert.ErrorIs(t, m.Variables().Set("albedo", sampler.Value()), material.ErrKindMismatch)
	assert.ErrorIs(t, m.Variables().Set("missing", nil), material.ErrUnknownVariable)

	require.NoError(t, m.Variables().Write("camera", 0, make([]byte, 64)))
	assert.ErrorIs(t, m.Variables().Write("albedo_sampler", 0, []byte{1}), material.ErrNotWritable)

	_, err = material.ParseResourceKind("cubemap")
	assert.ErrorIs(t, err, material.ErrUnknownKind)
	k, err := material.ParseResourceKind("rw_buffer")
	require.NoError(t, err)
	assert.Equal(t, material.KindRWBuffer, k)
}

func TestAnnotationKindMismatch(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.lib.LoadSource("bad", badKindWGSL)
	require.NoError(t, err)

	_, err = material.FromShader("bad", fx.lib, "bad", fx.factory)
	require.ErrorIs(t, err, material.ErrKindMismatch)
	assert.Contains(t, err.Error(), "line 1")

	_, err = material.FromShader("missing", fx.lib, "missing", fx.factory)
	assert.ErrorIs(t, err, material.ErrUnknownShader)
}

func TestTaskDispatch(t *testing.T) {
	fx := newFixture(t)
	task, err := material.TaskFromShader("simulate", fx.lib, "particles", fx.factory)
	require.NoError(t, err)
	t.Cleanup(func() { task.Release() })

	particles, ok := task.Variables().Get("particles")
	require.True(t, ok)
	assert.Equal(t, material.KindRWBuffer, particles.Kind())
	buf, ok := particles.Value().(resource.Buffer)
	require.True(t, ok)
	assert.Equal(t, uint64(256*16), buf.ByteSize(), "the annotation preset is the element count")

	weights, ok := task.Variables().Get("weights")
	require.True(t, ok, "unannotated bindings take the global's name")
	assert.Equal(t, material.KindBuffer, weights.Kind())

	ctx := fx.device.Immediate()
	require.Equal(t, pipe.ValidationSuccessful, ctx.Dispatch(task, 4, 1, 1))
	assert.Equal(t, 1, fx.rec.Count(native.OpDispatch))
	assert.Equal(t, pipe.ValidationInvalidThreadGroupCounts, ctx.Dispatch(task, 0, 1, 1))

	_, err = material.NewTask("draw", fx.lib, "textured", material.NewVariableSet(), 1)
	assert.ErrorIs(t, err, material.ErrUnknownShader)
}

const libraryYAML = `shaders:
  textured: textured.wgsl
  particles: particles.wgsl
materials:
  crate:
    iterations: 2
    passes:
      - name: base
        shader: textured
        iterations: 1
        states:
          none: {depth: read-only}
          multisample: {rasterizer: multisample}
    variables:
      albedo_sampler: {sampler: point-clamp}
tasks:
  simulate:
    shader: particles
    iterations: 3
    variables:
      particles: {count: 8}
`

func TestParseLibrary(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "textured.wgsl"), []byte(texturedWGSL), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "particles.wgsl"), []byte(particlesWGSL), 0o644))
	path := filepath.Join(dir, "materials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(libraryYAML), 0o644))

	lib := shader.NewLibrary(shader.NewCompiler())
	out, err := material.LoadLibrary(path, lib, fx.factory)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, out.Release()) })

	crate, ok := out.Materials["crate"]
	require.True(t, ok)
	assert.Equal(t, 2, crate.Iterations())
	require.Equal(t, 1, crate.PassCount())
	p := crate.Pass(0)
	assert.Equal(t, "base", p.Name())
	assert.Equal(t, 1, p.Iterations(), "the file overrides @oxy:iterations")

	none := p.State(pipe.ConditionNone)
	assert.Same(t, fx.device.BlendPreset(pipe.BlendAlpha), none.Blend, "annotated states stay in the base bank")
	assert.Same(t, fx.device.DepthPreset(pipe.DepthReadOnly), none.Depth)
	ms := p.State(pipe.ConditionMultisample)
	assert.Same(t, fx.device.RasterizerPreset(pipe.RasterMultisample), ms.Rasterizer)
	assert.Same(t, none.Depth, ms.Depth, "condition banks start from the base bank")

	s, _ := crate.Variables().Get("albedo_sampler")
	want, err := resource.ParseSamplerPreset("point-clamp")
	require.NoError(t, err)
	assert.Equal(t, want, s.Value().(resource.Sampler).Desc())

	sim, ok := out.Tasks["simulate"]
	require.True(t, ok)
	assert.Equal(t, 3, sim.Iterations())
	particles, _ := sim.Variables().Get("particles")
	assert.Equal(t, uint64(8*16), particles.Value().(resource.Buffer).ByteSize())
}

func TestParseLibraryErrors(t *testing.T) {
	fx := newFixture(t)

	_, err := material.ParseLibrary([]byte("materials: [1, 2"), "", fx.lib, fx.factory)
	assert.Error(t, err)

	_, err = material.ParseLibrary([]byte("materials:\n  empty: {}\n"), "", fx.lib, fx.factory)
	assert.ErrorContains(t, err, "no passes")

	_, err = material.ParseLibrary([]byte("materials:\n  m:\n    passes:\n      - shader: nope\n"), "", fx.lib, fx.factory)
	assert.ErrorIs(t, err, material.ErrUnknownShader)

	_, err = material.ParseLibrary([]byte("materials:\n  m:\n    passes:\n      - shader: textured\n        states:\n          none: {blend: glitter}\n"), "", fx.lib, fx.factory)
	assert.Error(t, err)
}

func TestParams(t *testing.T) {
	var p material.Params
	p.Float(1).Float(2, 3, 4)
	assert.Equal(t, 16, p.Len(), "a vec3 after a scalar fits the same row")

	var q material.Params
	q.Float(1, 2).Float(3, 4, 5)
	assert.Equal(t, 28, q.Len(), "a vec3 that would straddle a row starts the next one")
	assert.Len(t, q.Bytes(), 32)

	var m material.Params
	m.Uint(7).Matrix([16]float32{})
	assert.Equal(t, 80, m.Len())
}
