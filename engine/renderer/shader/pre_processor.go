// pre_processor.go implements the Oxy WGSL pre-processor. It resolves #include directives against the including
// file and the configured include directories, injects registered snippets for @oxy:include annotations and
// collects the remaining annotations so materials can wire variables and states without string lookups.
package shader

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// includeDirective starts a line that pulls another WGSL file into the source.
const includeDirective = "#include"

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// snippets maps @oxy:include arguments to WGSL source.
	snippets map[AnnotationArg]string

	// includeDirs are searched in order after the including file's directory.
	includeDirs []string

	readFile func(string) ([]byte, error)

	// annotations and includes accumulate during a Process call and are reset at the start of each call.
	annotations []Annotation
	includes    []string
}

// PreProcessor expands raw WGSL shader source: #include directives are replaced by the included file,
// @oxy:include annotations by registered snippets, and every other annotation is collected.
type PreProcessor interface {
	// Process expands source. Each file is included at most once per call; include cycles are errors.
	//
	// Parameters:
	//   - file: the path source was read from, used to resolve relative includes and in errors; may be empty
	//   - source: the raw WGSL source
	//
	// Returns:
	//   - string: the expanded WGSL source
	//   - error: an error naming the file and line of a malformed annotation or unresolved include
	Process(file, source string) (string, error)

	// Annotations returns the annotations collected during the most recent Process call, in source order.
	//
	// Returns:
	//   - []Annotation: the collected annotations
	Annotations() []Annotation

	// Includes returns the absolute paths of every file pulled in by the most recent Process call.
	//
	// Returns:
	//   - []string: the included files
	Includes() []string
}

var _ PreProcessor = &preProcessor{}

// PreProcessorBuilderOption is a functional option used to configure a PreProcessor.
type PreProcessorBuilderOption func(*preProcessor)

// WithIncludeDirs adds directories searched for #include files.
//
// Parameters:
//   - dirs: the directories, searched in order
//
// Returns:
//   - PreProcessorBuilderOption: a function that appends the include directories
func WithIncludeDirs(dirs ...string) PreProcessorBuilderOption {
	return func(p *preProcessor) {
		p.includeDirs = append(p.includeDirs, dirs...)
	}
}

// WithSnippet registers WGSL source injected by //@oxy:include <name>.
//
// Parameters:
//   - name: the snippet name
//   - source: the WGSL source
//
// Returns:
//   - PreProcessorBuilderOption: a function that registers the snippet
func WithSnippet(name, source string) PreProcessorBuilderOption {
	return func(p *preProcessor) {
		p.snippets[AnnotationArg(name)] = source
	}
}

// NewPreProcessor creates a PreProcessor. The camera and fullscreen snippets are always registered.
//
// Parameters:
//   - options: functional options (include directories, snippets)
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor(options ...PreProcessorBuilderOption) PreProcessor {
	p := &preProcessor{
		snippets: map[AnnotationArg]string{
			"camera":     cameraSnippet,
			"fullscreen": fullscreenSnippet,
		},
		readFile: os.ReadFile,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(file, source string) (string, error) {
	p.annotations = p.annotations[:0]
	p.includes = p.includes[:0]

	var stack []string
	if file != "" {
		abs, err := filepath.Abs(file)
		if err != nil {
			return "", err
		}
		file = abs
		stack = append(stack, abs)
	}
	out, err := p.expand(file, source, stack)
	if err != nil {
		return "", err
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Annotations() []Annotation {
	return p.annotations
}

func (p *preProcessor) Includes() []string {
	return p.includes
}

func (p *preProcessor) expand(file, source string, stack []string) ([]string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		if target, ok := strings.CutPrefix(strings.TrimSpace(line), includeDirective); ok {
			included, err := p.include(file, i+1, target, stack)
			if err != nil {
				return nil, err
			}
			out = append(out, included...)
			continue
		}

		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return nil, withFile(file, err)
		}
		if a == nil {
			out = append(out, line)
			continue
		}
		a.File = file

		switch a.Type {
		case annotationTypeInclude:
			snippet, ok := p.snippets[a.Args[0]]
			if !ok {
				return nil, withFile(file, fmt.Errorf("line %d: unknown @oxy:include snippet %q", i+1, a.Args[0]))
			}
			out = append(out, snippet)
		default:
			p.annotations = append(p.annotations, *a)
		}
	}
	return out, nil
}

// include resolves and expands one #include directive.
func (p *preProcessor) include(file string, line int, target string, stack []string) ([]string, error) {
	name, err := strconv.Unquote(strings.TrimSpace(target))
	if err != nil || name == "" {
		return nil, withFile(file, fmt.Errorf("line %d: malformed #include %s", line, strings.TrimSpace(target)))
	}
	path, data, err := p.resolve(file, name)
	if err != nil {
		return nil, withFile(file, fmt.Errorf("line %d: %w", line, err))
	}
	if slices.Contains(stack, path) {
		return nil, withFile(file, fmt.Errorf("line %d: include cycle through %q", line, name))
	}
	if slices.Contains(p.includes, path) {
		return nil, nil
	}
	p.includes = append(p.includes, path)
	return p.expand(path, string(data), append(stack, path))
}

// resolve searches the including file's directory, then the include directories.
func (p *preProcessor) resolve(file, name string) (string, []byte, error) {
	var dirs []string
	if filepath.IsAbs(name) {
		dirs = []string{""}
	} else {
		if file != "" {
			dirs = append(dirs, filepath.Dir(file))
		}
		dirs = append(dirs, p.includeDirs...)
	}
	for _, dir := range dirs {
		path, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if data, err := p.readFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("include %q not found", name)
}

func withFile(file string, err error) error {
	if file == "" {
		return err
	}
	return fmt.Errorf("%s: %w", filepath.Base(file), err)
}

const cameraSnippet = `struct Camera {
    view_proj: mat4x4<f32>,
    position: vec4<f32>,
}`

const fullscreenSnippet = `fn fullscreen_position(vertex_index: u32) -> vec4<f32> {
    let uv = vec2<f32>(f32((vertex_index << 1u) & 2u), f32(vertex_index & 2u));
    return vec4<f32>(uv * 2.0 - 1.0, 0.0, 1.0);
}`
