// annotations.go defines the annotation types and parser for the Oxy WGSL pre-processor. Annotations are
// single-line WGSL comments prefixed with @oxy: that inject registered snippets, name the material variables
// behind shader bindings and give a shader its default pass state. The parsed results are stored as Annotation
// values and consumed by the PreProcessor and by material.FromShader.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a snippet registered on the PreProcessor at the
	// annotation site. It is consumed entirely during pre-processing.
	//
	// Syntax: //@oxy:include <snippet>
	//
	// Example: //@oxy:include camera
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeVariable names the material variable bound at a group and binding and the resource kind the
	// material creates for it. The WGSL declaration stays hand-written below the annotation. An optional preset
	// configures the created resource: a sampler preset such as "linear-wrap", a constant buffer size in bytes or
	// a structured buffer element count.
	//
	// Syntax:
	//   //@oxy:variable <group> <binding> <kind> <name>
	//   //@oxy:variable <group> <binding> <kind> <name> <preset>
	//
	// Examples:
	//   //@oxy:variable 0 0 constants camera
	//   //@oxy:variable 1 1 sampler albedo_sampler linear-wrap
	AnnotationTypeVariable AnnotationType = "variable"

	// AnnotationTypeState selects the device preset a pass built from this shader uses for one state kind.
	//
	// Syntax: //@oxy:state <blend|depth|rasterizer> <preset>
	//
	// Example: //@oxy:state blend alpha
	AnnotationTypeState AnnotationType = "state"

	// AnnotationTypeIterations sets how many times a pass built from this shader draws.
	//
	// Syntax: //@oxy:iterations <count>
	AnnotationTypeIterations AnnotationType = "iterations"
)

// Annotation represents a single parsed @oxy: annotation.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include:    [0] = snippet name
	//   - variable:   [0] = variable kind, [1] = variable name, [2] = preset (optional)
	//   - state:      [0] = state kind, [1] = preset name
	//   - iterations: [0] = the count as written
	Args []AnnotationArg

	// File is the source file the annotation was read from, empty for in-memory sources.
	File string

	// Line is the 1-based line number in File. Used for error reporting.
	Line int

	// Group is the @group index for variable annotations. Nil otherwise.
	Group *int

	// Binding is the @binding index for variable annotations. Nil otherwise.
	Binding *int

	// Count is the parsed iteration count of an iterations annotation.
	Count int
}

// AnnotationArg is a typed string used as an argument in annotations.
type AnnotationArg string

// ── Variable kinds ─────────────────────────────────────────────────────────────
// These select the resource a material creates for a variable annotation.

const (
	// AnnotationArgConstants creates a constant buffer sized from reflection or the preset.
	AnnotationArgConstants AnnotationArg = "constants"

	// AnnotationArgTexture expects a caller-provided sampled texture.
	AnnotationArgTexture AnnotationArg = "texture"

	// AnnotationArgSampler creates a sampler from the preset, "linear-clamp" by default.
	AnnotationArgSampler AnnotationArg = "sampler"

	// AnnotationArgBuffer creates a read-only structured buffer.
	AnnotationArgBuffer AnnotationArg = "buffer"

	// AnnotationArgRWBuffer creates a read-write structured buffer bound as an unordered access view.
	AnnotationArgRWBuffer AnnotationArg = "rw_buffer"

	// AnnotationArgRWTexture expects a caller-provided storage texture bound as an unordered access view.
	AnnotationArgRWTexture AnnotationArg = "rw_texture"
)

// ── State kinds ────────────────────────────────────────────────────────────────

const (
	AnnotationArgBlend      AnnotationArg = "blend"
	AnnotationArgDepth      AnnotationArg = "depth"
	AnnotationArgRasterizer AnnotationArg = "rasterizer"
)

// validVariableKinds lists the kinds accepted by variable annotations.
var validVariableKinds = []AnnotationArg{
	AnnotationArgConstants,
	AnnotationArgTexture,
	AnnotationArgSampler,
	AnnotationArgBuffer,
	AnnotationArgRWBuffer,
	AnnotationArgRWTexture,
}

// statePresetParsers validates the preset argument of state annotations against the device preset registry.
var statePresetParsers = map[AnnotationArg]func(string) error{
	AnnotationArgBlend: func(s string) error {
		_, err := pipe.ParseBlendPreset(s)
		return err
	},
	AnnotationArgDepth: func(s string) error {
		_, err := pipe.ParseDepthPreset(s)
		return err
	},
	AnnotationArgRasterizer: func(s string) error {
		_, err := pipe.ParseRasterizerPreset(s)
		return err
	},
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	comment, ok := strings.CutPrefix(trimmed, "//")
	if !ok {
		return nil, nil
	}
	after, ok := strings.CutPrefix(strings.TrimSpace(comment), annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case annotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case AnnotationTypeVariable:
		if len(args) < 5 || len(args) > 6 {
			return nil, fmt.Errorf("line %d: @oxy variable annotation requires four or five arguments (group, binding, kind, name[, preset])", lineNum)
		}
		group, err := strconv.Atoi(args[1])
		if err != nil || group < 0 {
			return nil, fmt.Errorf("line %d: invalid group number %q in @oxy variable annotation", lineNum, args[1])
		}
		binding, err := strconv.Atoi(args[2])
		if err != nil || binding < 0 {
			return nil, fmt.Errorf("line %d: invalid binding number %q in @oxy variable annotation", lineNum, args[2])
		}
		if !slices.Contains(validVariableKinds, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown variable kind %q in @oxy variable annotation", lineNum, args[3])
		}
		varArgs := []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4])}
		if len(args) == 6 {
			varArgs = append(varArgs, AnnotationArg(args[5]))
		}
		return &Annotation{
			Type:    AnnotationTypeVariable,
			Args:    varArgs,
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	case AnnotationTypeState:
		if len(args) != 3 {
			return nil, fmt.Errorf("line %d: @oxy state annotation requires exactly two arguments (state kind, preset)", lineNum)
		}
		parse, ok := statePresetParsers[AnnotationArg(args[1])]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown state kind %q in @oxy state annotation", lineNum, args[1])
		}
		if err := parse(args[2]); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		return &Annotation{
			Type: AnnotationTypeState,
			Args: []AnnotationArg{AnnotationArg(args[1]), AnnotationArg(args[2])},
			Line: lineNum,
		}, nil
	case AnnotationTypeIterations:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy iterations annotation requires exactly one argument", lineNum)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("line %d: invalid iteration count %q", lineNum, args[1])
		}
		return &Annotation{
			Type:  AnnotationTypeIterations,
			Args:  []AnnotationArg{AnnotationArg(args[1])},
			Line:  lineNum,
			Count: n,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}

// ParseAnnotations scans a single WGSL source for @oxy: annotations without resolving includes. Include
// annotations are returned like any other.
//
// Parameters:
//   - source: the WGSL source
//
// Returns:
//   - []Annotation: the annotations in source order
//   - error: the first malformed annotation
func ParseAnnotations(source string) ([]Annotation, error) {
	var out []Annotation
	for i, line := range strings.Split(source, "\n") {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return nil, err
		}
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}
