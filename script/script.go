// Package script builds document networks from a small Lisp dialect
// evaluated by zygomys in a sandbox.
//
// A script declares network imports, literals and registry nodes, and ends
// by exporting the node whose output is the network's result:
//
//	(def x (input "u32" 0))
//	(def sum (node "ops::AddNode" x (lit "u32" 3)))
//	(export sum)
//
// Builtins:
//
//	(input TYPE INDEX)     read network import INDEX of type TYPE
//	(lit TYPE TEXT)        literal parsed as TYPE
//	(scope KEY)            read a scope injection
//	(inject KEY IN)        make IN available to nested nodes under KEY
//	(node ID IN...)        registry node ID with primary input and arguments
//	(export IN...)         append network exports
//
// Bare integers are u32 when non-negative and i32 otherwise; bare floats
// are f32. Comments use //.
package script

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/gogpu/nodegraph/document"
	"github.com/gogpu/nodegraph/internal/logger"
	"github.com/gogpu/nodegraph/preprocess"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/types"
)

// ErrNoExports is returned when a script exports nothing.
var ErrNoExports = errors.New("script: nothing exported")

// Error is an evaluation error with the source line it came from, when
// zygomys reports one.
type Error struct {
	Line    int
	Message string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("script: line %d: %s", e.Line, e.Message)
	}
	return "script: " + e.Message
}

type options struct {
	reg *registry.Registry
}

// Option configures Load.
type Option func(*options)

// WithRegistry makes node fill omitted arguments with the defaults the
// registry describes for that node.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *options) { o.reg = reg }
}

type result struct {
	net *document.Network
	err error
}

// Load evaluates src and returns the network it describes. Each call uses
// a fresh sandbox. If ctx ends first, Load returns ctx.Err() at once and
// the evaluation result is discarded.
//
// The interpreter cannot be preempted: after ctx ends, the evaluation
// goroutine keeps running until the script's next builtin call, which
// fails with ctx.Err(). A script that loops without calling a builtin runs
// to completion in the background.
func Load(ctx context.Context, src string, opts ...Option) (*document.Network, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("script: panic during evaluation: %v", r)}
			}
		}()
		net, err := evaluate(ctx, src, o)
		ch <- result{net: net, err: err}
	}()

	select {
	case res := <-ch:
		return res.net, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func evaluate(ctx context.Context, src string, o options) (*document.Network, error) {
	if strings.TrimSpace(src) == "" {
		return nil, ErrNoExports
	}

	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := &builder{ctx: ctx, net: document.NewNetwork(), reg: o.reg, returns: make(map[document.NodeID]types.Type)}
	b.install(env)

	if err := env.LoadString(src); err != nil {
		return nil, parseError(err)
	}
	_, err := env.Run()
	if b.err != nil {
		return nil, b.err
	}
	if err != nil {
		return nil, parseError(err)
	}
	if len(b.net.Exports) == 0 {
		return nil, ErrNoExports
	}
	logger.Get().Debug("script: loaded network", "nodes", len(b.net.Nodes), "exports", len(b.net.Exports))
	return b.net, nil
}

var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

func parseError(err error) error {
	msg := strings.TrimSpace(err.Error())
	if m := linePattern.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		return &Error{Line: line, Message: strings.TrimSpace(m[2])}
	}
	return &Error{Message: msg}
}

type builder struct {
	ctx context.Context
	// err is set when a builtin refused to run because ctx ended.
	err error
	net *document.Network
	reg *registry.Registry
	// returns records the output type of registry nodes built so far.
	returns map[document.NodeID]types.Type
}

func (b *builder) install(env *zygo.Zlisp) {
	env.AddFunction("input", b.guard(b.input))
	env.AddFunction("lit", b.guard(b.lit))
	env.AddFunction("scope", b.guard(b.scope))
	env.AddFunction("inject", b.guard(b.inject))
	env.AddFunction("node", b.guard(b.node))
	env.AddFunction("export", b.guard(b.export))
}

// guard makes fn fail once ctx has ended, so an abandoned evaluation stops
// at its next builtin call.
func (b *builder) guard(fn zygo.ZlispUserFunction) zygo.ZlispUserFunction {
	return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if err := b.ctx.Err(); err != nil {
			b.err = err
			return zygo.SexpNull, err
		}
		return fn(env, name, args)
	}
}

func (b *builder) input(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 2 {
		return zygo.SexpNull, fmt.Errorf("input: want a type and an index, got %d arguments", len(args))
	}
	t, err := toType(args[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("input: %w", err)
	}
	idx, ok := args[1].(*zygo.SexpInt)
	if !ok || idx.Val < 0 {
		return zygo.SexpNull, fmt.Errorf("input: index must be a non-negative integer, got %s", args[1].SexpString(nil))
	}
	return &sexpInput{in: document.ImportInput(t, int(idx.Val))}, nil
}

func (b *builder) lit(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 2 {
		return zygo.SexpNull, fmt.Errorf("lit: want a type and a value, got %d arguments", len(args))
	}
	t, err := toType(args[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("lit: %w", err)
	}
	v, err := literal(args[1], t)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("lit: %w", err)
	}
	return &sexpInput{in: document.ValueInput(v, true)}, nil
}

func (b *builder) scope(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 1 {
		return zygo.SexpNull, fmt.Errorf("scope: want a key, got %d arguments", len(args))
	}
	key, err := toString(args[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("scope: %w", err)
	}
	return &sexpInput{in: document.ScopeInput(key)}, nil
}

func (b *builder) inject(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 2 {
		return zygo.SexpNull, fmt.Errorf("inject: want a key and an input, got %d arguments", len(args))
	}
	key, err := toString(args[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("inject: %w", err)
	}
	in, err := toInput(args[1])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("inject: %w", err)
	}
	if b.net.ScopeInjections == nil {
		b.net.ScopeInjections = make(map[string]document.Input)
	}
	b.net.ScopeInjections[key] = in
	return zygo.SexpNull, nil
}

func (b *builder) node(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) == 0 {
		return zygo.SexpNull, fmt.Errorf("node: want an identifier")
	}
	s, err := toString(args[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("node: %w", err)
	}
	id := registry.NewIdentifier(s)

	inputs := make([]document.Input, 0, len(args)-1)
	for i, a := range args[1:] {
		in, err := toInput(a)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("node %s: input %d: %w", id, i, err)
		}
		inputs = append(inputs, in)
	}
	var ret types.Type
	if b.reg != nil {
		call := b.primaryType(inputs)
		if def, err := preprocess.DefaultNodeFor(b.reg, id, call); err == nil && len(def.Inputs) > len(inputs) {
			inputs = append(inputs, def.Inputs[len(inputs):]...)
		}
		if impl, err := preprocess.ImplementationFor(b.reg, id, call); err == nil {
			ret = impl.IO.Return
		}
	}

	ref := b.net.Add(&document.Node{
		Name:           id.String(),
		Inputs:         inputs,
		Implementation: document.ProtoImpl(id),
		Visible:        true,
	})
	if ret.IsValid() {
		b.returns[ref] = ret
	}
	return &sexpNodeRef{id: ref, name: id.String()}, nil
}

// primaryType is the type fed to a node through its first input, or the
// invalid type when it is not known while the script runs.
func (b *builder) primaryType(inputs []document.Input) types.Type {
	if len(inputs) == 0 {
		return types.Type{}
	}
	switch in := inputs[0]; in.Kind {
	case document.InputImport:
		return in.Type
	case document.InputValue:
		return in.Value.Type()
	case document.InputNode:
		return b.returns[in.Node]
	}
	return types.Type{}
}

func (b *builder) export(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) == 0 {
		return zygo.SexpNull, fmt.Errorf("export: want at least one input")
	}
	for i, a := range args {
		in, err := toInput(a)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("export %d: %w", i, err)
		}
		b.net.Exports = append(b.net.Exports, in)
	}
	return zygo.SexpNull, nil
}
