package registry

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Identifier is the qualified name of a node implementation, including any
// generic arguments, for example "ops::IntoNode<uint32>".
type Identifier struct {
	name string
}

// NewIdentifier returns the identifier for name. Names are NFC-normalized so
// that visually identical names authored on different platforms compare equal.
func NewIdentifier(name string) Identifier {
	return Identifier{name: norm.NFC.String(strings.TrimSpace(name))}
}

// Name returns the full qualified name.
func (id Identifier) Name() string { return id.name }

func (id Identifier) String() string { return id.name }

// IsZero reports whether id is the empty identifier.
func (id Identifier) IsZero() bool { return id.name == "" }

// Base returns the name with its generic suffix removed.
func (id Identifier) Base() string {
	if i := strings.IndexByte(id.name, '<'); i >= 0 {
		return id.name[:i]
	}
	return id.name
}

// GenericArgs returns the top-level generic arguments, if any.
func (id Identifier) GenericArgs() []string {
	i := strings.IndexByte(id.name, '<')
	if i < 0 || !strings.HasSuffix(id.name, ">") {
		return nil
	}
	inner := id.name[i+1 : len(id.name)-1]
	var args []string
	depth, start := 0, 0
	for j, r := range inner {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:j]))
				start = j + 1
			}
		}
	}
	return append(args, strings.TrimSpace(inner[start:]))
}

// WithGeneric returns base<arg>.
func WithGeneric(base, arg string) Identifier {
	return NewIdentifier(base + "<" + arg + ">")
}
