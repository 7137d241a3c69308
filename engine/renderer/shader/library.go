package shader

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
)

// libraryEntry is one loaded shader and the pipeline programs handed out for it.
type libraryEntry struct {
	shader   Shader
	programs map[pipe.ShaderKind]*pipe.ShaderProgram
}

// library is the implementation of the Library interface.
type library struct {
	compiler Compiler

	mu        sync.RWMutex
	entries   map[string]*libraryEntry
	listeners []func(Shader)
}

// Library owns compiled shaders by key and the pipeline programs built from them. Reloading a shader updates
// those programs in place, so every stage holding one re-sends it on its next refresh.
type Library interface {
	// Load compiles a WGSL file and registers it under key, replacing any previous shader with that key.
	//
	// Parameters:
	//   - key: the unique shader key
	//   - path: the WGSL file
	//
	// Returns:
	//   - Shader: the compiled shader
	//   - error: a compile error
	Load(key, path string) (Shader, error)

	// LoadSource compiles an in-memory WGSL source and registers it under key.
	//
	// Parameters:
	//   - key: the unique shader key
	//   - source: the WGSL source
	//
	// Returns:
	//   - Shader: the compiled shader
	//   - error: a compile error
	LoadSource(key, source string) (Shader, error)

	// Shader returns the shader registered under key.
	//
	// Parameters:
	//   - key: the shader key
	//
	// Returns:
	//   - Shader: the shader
	//   - bool: false when no shader has the key
	Shader(key string) (Shader, bool)

	// Program returns the pipeline program of one stage of a shader. The same program is returned across
	// reloads.
	//
	// Parameters:
	//   - key: the shader key
	//   - kind: the pipeline stage
	//
	// Returns:
	//   - *pipe.ShaderProgram: the program, or nil when the shader or stage does not exist
	Program(key string, kind pipe.ShaderKind) *pipe.ShaderProgram

	// Reload recompiles every file-backed shader that is, or includes, path. A failed recompile keeps the
	// previous programs.
	//
	// Parameters:
	//   - path: the changed file
	//
	// Returns:
	//   - []string: keys of the shaders that were reloaded
	//   - error: the joined compile errors of shaders that failed to reload
	Reload(path string) ([]string, error)

	// Paths returns every file the loaded shaders depend on.
	//
	// Returns:
	//   - []string: absolute source and include paths, deduplicated
	Paths() []string

	// OnReload registers a callback run after a shader is reloaded.
	//
	// Parameters:
	//   - fn: the callback
	OnReload(fn func(Shader))

	// Release releases the native shaders of every program against the device.
	//
	// Parameters:
	//   - d: the device the programs were bound on
	Release(d *pipe.Device)
}

var _ Library = &library{}

// NewLibrary creates a shader library.
//
// Parameters:
//   - c: the compiler used for loads and reloads
//
// Returns:
//   - Library: an empty library
func NewLibrary(c Compiler) Library {
	return &library{
		compiler: c,
		entries:  make(map[string]*libraryEntry),
	}
}

func (l *library) Load(key, path string) (Shader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	s, err := l.compiler.CompileFile(key, abs)
	if err != nil {
		return nil, err
	}
	l.register(key, s)
	return s, nil
}

func (l *library) LoadSource(key, source string) (Shader, error) {
	s, err := l.compiler.Compile(key, source)
	if err != nil {
		return nil, err
	}
	l.register(key, s)
	return s, nil
}

func (l *library) register(key string, s Shader) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = &libraryEntry{shader: s, programs: stagePrograms(key, s)}
}

func (l *library) Shader(key string) (Shader, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	return e.shader, true
}

func (l *library) Program(key string, kind pipe.ShaderKind) *pipe.ShaderProgram {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	if !ok {
		return nil
	}
	return e.programs[kind]
}

func (l *library) Reload(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	var stale []string
	for key, e := range l.entries {
		if e.shader.Path() == "" {
			continue
		}
		if e.shader.Path() == abs || slices.Contains(e.shader.Includes(), abs) {
			stale = append(stale, key)
		}
	}
	l.mu.RUnlock()
	slices.Sort(stale)

	var (
		reloaded []string
		errs     []error
	)
	for _, key := range stale {
		s, err := l.recompile(key)
		if err != nil {
			logger.Logger().Error("shader reload failed", "key", key, "error", err)
			errs = append(errs, err)
			continue
		}
		reloaded = append(reloaded, key)
		l.notify(s)
	}
	if len(errs) > 0 {
		return reloaded, fmt.Errorf("reload %s: %w", filepath.Base(abs), errors.Join(errs...))
	}
	return reloaded, nil
}

func (l *library) recompile(key string) (Shader, error) {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("shader %q was removed", key)
	}

	s, err := l.compiler.CompileFile(key, e.shader.Path())
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range s.Programs() {
		sp, ok := e.programs[p.Kind]
		if !ok {
			e.programs[p.Kind] = p.NewShaderProgram(key + "/" + p.Kind.String())
			continue
		}
		sp.Update([]byte(p.HLSL), p.Reflection.Inputs)
		if p.Kind == pipe.ShaderCompute {
			sp.SetThreadGroupSize(p.Reflection.WorkgroupSize)
		}
	}
	for kind := range e.programs {
		if s.Program(kind) == nil {
			logger.Logger().Warn("reloaded shader dropped a stage; keeping the previous program", "key", key, "stage", kind.String())
		}
	}
	e.shader = s
	logger.Logger().Info("shader reloaded", "key", key)
	return s, nil
}

func (l *library) notify(s Shader) {
	l.mu.RLock()
	listeners := slices.Clone(l.listeners)
	l.mu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func (l *library) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var paths []string
	for _, e := range l.entries {
		if e.shader.Path() == "" {
			continue
		}
		paths = append(paths, e.shader.Path())
		paths = append(paths, e.shader.Includes()...)
	}
	slices.Sort(paths)
	return slices.Compact(paths)
}

func (l *library) OnReload(fn func(Shader)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *library) Release(d *pipe.Device) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		for _, p := range e.programs {
			if err := p.Release(d); err != nil {
				logger.Logger().Warn("shader program release failed", "key", key, "error", err)
			}
		}
	}
	clear(l.entries)
}
