package shader_test

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
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

const particlesWGSL = `//@oxy:variable 0 0 rw_buffer particles
@group(0) @binding(0) var<storage, read_write> particles: array<vec4<f32>>;
//@oxy:variable 0 1 buffer weights
@group(0) @binding(1) var<storage, read> weights: array<f32>;

fn weight(i: u32) -> f32 {
    return weights[i];
}

@compute @workgroup_size(64, 1, 1)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    particles[id.x] = particles[id.x] * weight(id.x);
}
`

func TestCompileGraphicsShader(t *testing.T) {
	s, err := shader.NewCompiler().Compile("textured", texturedWGSL)
	require.NoError(t, err)
	assert.Equal(t, "textured", s.Key())
	assert.Empty(t, s.Path())
	assert.Contains(t, s.Source(), "struct Camera")

	require.Len(t, s.Programs(), 2)
	assert.Equal(t, pipe.ShaderVertex, s.Programs()[0].Kind)
	assert.Equal(t, pipe.ShaderPixel, s.Programs()[1].Kind)
	assert.Nil(t, s.Program(pipe.ShaderCompute))

	vs := s.Program(pipe.ShaderVertex)
	require.NotNil(t, vs)
	assert.NotEmpty(t, vs.EntryPoint)
	assert.Contains(t, vs.HLSL, "register(b0")
	require.Len(t, vs.Reflection.ConstBuffers, 1)
	cam := vs.Reflection.ConstBuffers[0]
	assert.Equal(t, "camera", cam.Name)
	assert.Equal(t, shader.BindingConstants, cam.Kind)
	assert.Equal(t, uint32(80), cam.Size)
	assert.Empty(t, vs.Reflection.Resources, "the vertex program does not sample the texture")
	assert.Equal(t, []pipe.ShaderInput{
		{Semantic: "LOC", SemanticIndex: 0, Format: gputypes.VertexFormatFloat32x3},
		{Semantic: "LOC", SemanticIndex: 1, Format: gputypes.VertexFormatFloat32x2},
	}, vs.Reflection.Inputs)

	ps := s.Program(pipe.ShaderPixel)
	require.NotNil(t, ps)
	assert.Empty(t, ps.Reflection.ConstBuffers)
	assert.Empty(t, ps.Reflection.Inputs)
	require.Len(t, ps.Reflection.Resources, 1)
	require.Len(t, ps.Reflection.Samplers, 1)
	assert.Equal(t, shader.Binding{Name: "albedo", Group: 1, Binding: 0, Register: 0, Kind: shader.BindingTexture}, ps.Reflection.Resources[0])
	assert.Equal(t, shader.BindingSampler, ps.Reflection.Samplers[0].Kind)

	b, ok := ps.Reflection.Find(1, 1)
	require.True(t, ok)
	assert.Equal(t, "albedo_sampler", b.Name)

	require.Len(t, s.Annotations(), 5)
	v, ok := s.Variable(1, 1)
	require.True(t, ok)
	assert.Equal(t, []shader.AnnotationArg{"sampler", "albedo_sampler", "linear-wrap"}, v.Args)
	_, ok = s.Variable(3, 0)
	assert.False(t, ok)
}

func TestCompileComputeShader(t *testing.T) {
	s, err := shader.NewCompiler().Compile("particles", particlesWGSL)
	require.NoError(t, err)
	require.Len(t, s.Programs(), 1)

	cs := s.Program(pipe.ShaderCompute)
	require.NotNil(t, cs)
	assert.Equal(t, [3]uint32{64, 1, 1}, cs.Reflection.WorkgroupSize)

	require.Len(t, cs.Reflection.UAVs, 1)
	assert.Equal(t, shader.BindingRWStructured, cs.Reflection.UAVs[0].Kind)
	assert.Equal(t, uint32(16), cs.Reflection.UAVs[0].Size)

	require.Len(t, cs.Reflection.Resources, 1, "globals used by called functions are reflected")
	weights := cs.Reflection.Resources[0]
	assert.Equal(t, shader.BindingStructured, weights.Kind)
	assert.Equal(t, uint32(4), weights.Size)
	assert.Equal(t, uint32(0), weights.Register, "registers are dense per class")

	assert.Len(t, cs.Reflection.Bindings(), 2)

	sp := cs.NewShaderProgram("particles/cs")
	assert.Equal(t, pipe.ShaderCompute, sp.Kind())
	assert.Equal(t, [3]uint32{64, 1, 1}, sp.ThreadGroupSize())
	assert.Equal(t, []byte(cs.HLSL), sp.Bytecode())
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		target error
	}{
		{name: "no entry point", source: "fn helper() -> f32 { return 1.0; }", target: shader.ErrNoEntryPoint},
		{name: "syntax", source: "fn broken( {"},
		{name: "annotation", source: "//@oxy:state blend glow\n@compute @workgroup_size(1) fn main() {}"},
		{name: "two vertex entry points", source: "@vertex fn a() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }\n@vertex fn b() -> @builtin(position) vec4<f32> { return vec4<f32>(1.0); }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := shader.NewCompiler().Compile(tt.name, tt.source)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.name)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}
