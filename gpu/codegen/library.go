package codegen

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/nodegraph/registry"
)

var (
	// ErrUnknownFunction is returned when a node has no WGSL definition.
	ErrUnknownFunction = errors.New("codegen: no WGSL function for node")
	// ErrInvalidIO is returned for shader layouts that cannot be emitted.
	ErrInvalidIO = errors.New("codegen: invalid shader io")
	// ErrUnsupportedNode is returned for nodes the kernel cannot express.
	ErrUnsupportedNode = errors.New("codegen: node not supported on the GPU")
)

// Definition renders the WGSL function for one node, specialized to the
// kernel's element type. The function must be named by Mangle.
type Definition func(elem string) string

// Library maps mangled node names to their WGSL definitions.
type Library map[string]Definition

// Mangle turns a qualified identifier into a WGSL function name: generic
// arguments are stripped and path separators become underscores.
func Mangle(id registry.Identifier) string {
	return strings.ReplaceAll(id.Base(), "::", "_")
}

// Add registers def under the mangled name of id.
func (l Library) Add(id registry.Identifier, def Definition) {
	l[Mangle(id)] = def
}

// Merge copies every definition of other into l.
func (l Library) Merge(other Library) {
	for k, v := range other {
		l[k] = v
	}
}

// render returns the definitions for names, sorted for stable output.
func (l Library) render(names []string, elem string) ([]string, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	defs := make([]string, 0, len(sorted))
	for _, name := range sorted {
		def, ok := l[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
		}
		defs = append(defs, strings.TrimSpace(def(elem)))
	}
	return defs, nil
}
