package proto

import (
	"errors"
	"fmt"

	"github.com/gogpu/nodegraph/registry"
)

var (
	ErrEmptyNetwork            = errors.New("proto: empty network")
	ErrInputNodeNotFound       = errors.New("proto: input node not found")
	ErrCycle                   = errors.New("proto: cycle detected")
	ErrNoImplementations       = errors.New("proto: no implementations found")
	ErrNoConstructor           = errors.New("proto: no constructor found")
	ErrInvalidImplementations  = errors.New("proto: no implementation accepts the input types")
	ErrMultipleImplementations = errors.New("proto: multiple implementations match")
	ErrUnexpectedGenerics      = errors.New("proto: unexpected generic input")
	ErrUnexpectedCallArgument  = errors.New("proto: argument node depends on its call argument")
	ErrUnresolvedType          = errors.New("proto: could not determine type of node")
)

// GraphError reports a problem with one node of a network.
type GraphError struct {
	Kind       error
	Node       NodeID
	Identifier registry.Identifier
	Msg        string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	s := fmt.Sprintf("%s (node %d", e.Kind, e.Node)
	if !e.Identifier.IsZero() {
		s += " " + e.Identifier.String()
	}
	s += ")"
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *GraphError) Unwrap() error { return e.Kind }

func graphErr(kind error, id NodeID, node *ProtoNode, format string, args ...any) error {
	e := &GraphError{Kind: kind, Node: id, Msg: fmt.Sprintf(format, args...)}
	if node != nil {
		e.Identifier = node.Identifier
	}
	return e
}
