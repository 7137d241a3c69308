package shader_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPreProcessorIncludes(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib")
	writeFile(t, filepath.Join(lib, "common.wgsl"), "const PI: f32 = 3.14159;")
	writeFile(t, filepath.Join(dir, "local.wgsl"), "#include \"common.wgsl\"\nconst TAU: f32 = 6.28318;")
	main := writeFile(t, filepath.Join(dir, "main.wgsl"), strings.Join([]string{
		`#include "local.wgsl"`,
		`#include "common.wgsl"`,
		`//@oxy:iterations 2`,
		`fn f() {}`,
	}, "\n"))

	pp := shader.NewPreProcessor(shader.WithIncludeDirs(lib))
	data, err := os.ReadFile(main)
	require.NoError(t, err)
	out, err := pp.Process(main, string(data))
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "const PI"), "a file is included once")
	assert.Contains(t, out, "const TAU")
	assert.Contains(t, out, "fn f() {}")
	assert.NotContains(t, out, "#include")
	assert.Len(t, pp.Includes(), 2)

	require.Len(t, pp.Annotations(), 1)
	a := pp.Annotations()[0]
	assert.Equal(t, shader.AnnotationTypeIterations, a.Type)
	assert.Equal(t, main, a.File)
	assert.Equal(t, 3, a.Line)
}

func TestPreProcessorAnnotationsFromIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "camera.wgsl"), "//@oxy:variable 0 0 constants camera\n@group(0) @binding(0) var<uniform> camera: vec4<f32>;")
	main := filepath.Join(dir, "main.wgsl")

	pp := shader.NewPreProcessor()
	_, err := pp.Process(main, "#include \"camera.wgsl\"\n//@oxy:state depth read-only")
	require.NoError(t, err)

	require.Len(t, pp.Annotations(), 2)
	assert.Equal(t, shader.AnnotationTypeVariable, pp.Annotations()[0].Type)
	assert.Equal(t, filepath.Join(dir, "camera.wgsl"), pp.Annotations()[0].File)
	assert.Equal(t, shader.AnnotationTypeState, pp.Annotations()[1].Type)

	_, err = pp.Process("", "fn g() {}")
	require.NoError(t, err)
	assert.Empty(t, pp.Annotations(), "state resets between calls")
	assert.Empty(t, pp.Includes())
}

func TestPreProcessorSnippets(t *testing.T) {
	pp := shader.NewPreProcessor(shader.WithSnippet("tonemap", "fn tonemap(c: vec3<f32>) -> vec3<f32> { return c / (c + vec3<f32>(1.0)); }"))

	out, err := pp.Process("", "//@oxy:include camera\n//@oxy:include tonemap")
	require.NoError(t, err)
	assert.Contains(t, out, "struct Camera")
	assert.Contains(t, out, "fn tonemap")
	assert.Empty(t, pp.Annotations(), "include annotations are consumed")

	_, err = pp.Process("", "//@oxy:include bloom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown @oxy:include snippet "bloom"`)
}

func TestPreProcessorErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.wgsl"), `#include "b.wgsl"`)
	writeFile(t, filepath.Join(dir, "b.wgsl"), `#include "a.wgsl"`)
	writeFile(t, filepath.Join(dir, "bad.wgsl"), "fn h() {}\n//@oxy:iterations none")

	tests := []struct {
		name    string
		source  string
		wantErr string
	}{
		{name: "cycle", source: `#include "a.wgsl"`, wantErr: "include cycle"},
		{name: "missing", source: `#include "nope.wgsl"`, wantErr: `include "nope.wgsl" not found`},
		{name: "unquoted", source: `#include nope.wgsl`, wantErr: "malformed #include"},
		{name: "annotation in include", source: `#include "bad.wgsl"`, wantErr: "bad.wgsl: line 2: invalid iteration count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := shader.NewPreProcessor().Process(filepath.Join(dir, "main.wgsl"), tt.source)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
