// Package shader resolves the pathtracer's logical kernel names to
// compiled modules.
//
// The three kernels ship as embedded WGSL and are compiled to SPIR-V with
// naga on first use. A DirLoader serves precompiled .spv files instead,
// as written by "oscuras shaders build".
package shader

import (
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gogpu/naga"

	"github.com/gogpu/oscuras"
)

// Logical kernel names.
const (
	RayGen    = "raygen"
	Intersect = "intersect"
	Shade     = "shade"
)

// EntryPoint is the entry point of every kernel.
const EntryPoint = "main"

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// ErrInvalidSPIRV is returned for a module that is not SPIR-V.
var ErrInvalidSPIRV = errors.New("shader: invalid SPIR-V")

//go:embed wgsl/*.wgsl
var sources embed.FS

// Names returns the logical names of the kernels in stage order.
func Names() []string {
	return []string{RayGen, Intersect, Shade}
}

func known(name string) bool {
	switch name {
	case RayGen, Intersect, Shade:
		return true
	}
	return false
}

func notFound(name string) error {
	return fmt.Errorf("shader %q: %w", name, oscuras.ErrShaderNotFound)
}

// Module is a compiled kernel.
type Module struct {
	Name       string
	EntryPoint string
	SPIRV      []uint32
}

// Loader resolves a logical kernel name to a compiled module.
type Loader interface {
	Load(name string) (*Module, error)
}

// Source returns the embedded WGSL source of a kernel.
func Source(name string) (string, error) {
	if !known(name) {
		return "", notFound(name)
	}
	b, err := sources.ReadFile("wgsl/" + name + ".wgsl")
	if err != nil {
		return "", notFound(name)
	}
	return string(b), nil
}

// Compile compiles WGSL source to SPIR-V words.
func Compile(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}
	return Words(spirvBytes)
}

// Words converts a little endian SPIR-V binary to words.
func Words(b []byte) ([]uint32, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

// Bytes converts SPIR-V words to their little endian binary form.
func Bytes(words []uint32) []byte {
	b := make([]byte, 0, len(words)*4)
	for _, w := range words {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}

// EmbeddedLoader compiles the embedded WGSL kernels. Compiled modules are
// cached, so a loader can be shared by every engine in a process.
type EmbeddedLoader struct {
	mu    sync.Mutex
	cache map[string]*Module
}

// Embedded returns a loader for the embedded kernels.
func Embedded() *EmbeddedLoader {
	return &EmbeddedLoader{cache: make(map[string]*Module)}
}

// Load compiles the named kernel, or returns the cached module.
func (l *EmbeddedLoader) Load(name string) (*Module, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.cache[name]; ok {
		return m, nil
	}
	src, err := Source(name)
	if err != nil {
		return nil, err
	}
	words, err := Compile(src)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", name, err)
	}
	m := &Module{Name: name, EntryPoint: EntryPoint, SPIRV: words}
	l.cache[name] = m
	oscuras.Logger().Debug("shader: compiled", "name", name, "words", len(words))
	return m, nil
}

// DirLoader loads precompiled <name>.spv files from a directory.
type DirLoader struct {
	Dir string
}

// Load reads and validates the named module.
func (l DirLoader) Load(name string) (*Module, error) {
	if !known(name) {
		return nil, notFound(name)
	}
	path := filepath.Join(l.Dir, name+".spv")
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, oscuras.ErrShaderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("shader: %w", err)
	}
	words, err := Words(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Module{Name: name, EntryPoint: EntryPoint, SPIRV: words}, nil
}

// Build compiles every embedded kernel and writes <name>.spv files to dir.
// It returns the paths written.
func Build(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("shader: %w", err)
	}
	l := Embedded()
	paths := make([]string, 0, len(Names()))
	for _, name := range Names() {
		m, err := l.Load(name)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, name+".spv")
		if err := os.WriteFile(path, Bytes(m.SPIRV), 0o644); err != nil {
			return paths, fmt.Errorf("shader: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// HostLoader returns modules that carry only a name, for devices that run
// kernels on the host and never read SPIR-V.
type HostLoader struct{}

// Load returns an empty module for a known kernel name.
func (HostLoader) Load(name string) (*Module, error) {
	if !known(name) {
		return nil, notFound(name)
	}
	return &Module{Name: name, EntryPoint: EntryPoint}, nil
}
