package codegen

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/nodegraph/internal/cache"
	"github.com/gogpu/nodegraph/internal/logger"
	"github.com/gogpu/nodegraph/proto"
)

// ErrInvalidSPIRV is returned when the toolchain output is not a SPIR-V module.
var ErrInvalidSPIRV = errors.New("codegen: invalid SPIR-V module")

const (
	spirvMagic        = 0x07230203
	spirvHeaderWords  = 5
	opEntryPoint      = 15
	defaultCacheLimit = 64
)

// Shader is a compiled kernel ready for dispatch.
type Shader struct {
	Source      string
	SPIRV       []uint32
	EntryPoints []string
	IO          ShaderIO
	// WorkgroupSize is the x size the kernel was generated with.
	WorkgroupSize uint32
}

// EntryPoint returns the first entry point of the module.
func (s *Shader) EntryPoint() string {
	if len(s.EntryPoints) == 0 {
		return ""
	}
	return s.EntryPoints[0]
}

// Compiler turns a resolved network into a dispatchable kernel.
type Compiler interface {
	Compile(net *proto.Network, io ShaderIO) (*Shader, error)
}

type module struct {
	spirv   []uint32
	entries []string
}

// NagaCompiler generates WGSL and compiles it with naga. Modules are
// memoized by the SHA-256 of their source, so recompiling an unchanged
// network skips the toolchain. A NagaCompiler is safe for concurrent use.
type NagaCompiler struct {
	lib     Library
	opts    Options
	modules *cache.Cache[[sha256.Size]byte, module]
}

// NewNagaCompiler returns a compiler resolving node functions in lib.
func NewNagaCompiler(lib Library, opts Options) *NagaCompiler {
	return &NagaCompiler{
		lib:     lib,
		opts:    opts.withDefaults(),
		modules: cache.New[[sha256.Size]byte, module](defaultCacheLimit),
	}
}

// Compile serializes net and compiles the result.
func (c *NagaCompiler) Compile(net *proto.Network, io ShaderIO) (*Shader, error) {
	source, err := Serialize(net, io, c.lib, c.opts)
	if err != nil {
		return nil, err
	}
	words, entries, err := c.compileSource(source)
	if err != nil {
		return nil, err
	}
	return &Shader{
		Source:        source,
		SPIRV:         words,
		EntryPoints:   entries,
		IO:            io,
		WorkgroupSize: c.opts.ComputeThreads,
	}, nil
}

// Stats reports the module cache counters.
func (c *NagaCompiler) Stats() cache.Stats { return c.modules.Stats() }

func (c *NagaCompiler) compileSource(source string) ([]uint32, []string, error) {
	key := sha256.Sum256([]byte(source))
	created := false
	m, err := c.modules.GetOrCreate(key, func() (module, error) {
		created = true
		words, entries, err := CompileWGSL(source)
		return module{spirv: words, entries: entries}, err
	})
	if err != nil {
		return nil, nil, err
	}
	if !created {
		logger.Get().Debug("codegen: kernel cache hit", "key", fmt.Sprintf("%x", key[:8]))
	}
	return m.spirv, m.entries, nil
}

// CompileWGSL compiles WGSL source to SPIR-V words and lists the module's
// entry points.
func CompileWGSL(source string) ([]uint32, []string, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, nil, fmt.Errorf("codegen: compile kernel: %w", err)
	}
	words, err := SPIRVWords(spirvBytes)
	if err != nil {
		return nil, nil, err
	}
	entries, err := EntryPoints(words)
	if err != nil {
		return nil, nil, err
	}
	logger.Get().Debug("codegen: compiled kernel", "words", len(words), "entry_points", entries)
	return words, entries, nil
}

// SPIRVWords converts a little-endian SPIR-V byte stream into words and
// checks the magic number.
func SPIRVWords(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 || len(b) < spirvHeaderWords*4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: magic 0x%08X", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

// EntryPoints returns the names declared by OpEntryPoint instructions.
func EntryPoints(words []uint32) ([]string, error) {
	if len(words) < spirvHeaderWords || words[0] != spirvMagic {
		return nil, ErrInvalidSPIRV
	}
	var names []string
	for i := spirvHeaderWords; i < len(words); {
		count := int(words[i] >> 16)
		op := words[i] & 0xFFFF
		if count == 0 || i+count > len(words) {
			return nil, fmt.Errorf("%w: truncated instruction at word %d", ErrInvalidSPIRV, i)
		}
		// OpEntryPoint: model, function id, then a nul-terminated name.
		if op == opEntryPoint && count > 3 {
			names = append(names, literalString(words[i+3:i+count]))
		}
		i += count
	}
	return names, nil
}

func literalString(words []uint32) string {
	b := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(b)
			}
			b = append(b, c)
		}
	}
	return string(b)
}
