// Package codegen turns a resolved proto network into a WGSL compute kernel
// and compiles it to SPIR-V.
//
// The generated kernel runs the network once per element: invocation idx
// reads element idx of every storage input, evaluates the nodes in id order
// and stores the output node into element idx of the output buffer.
// Invocations past the element count in the constants block return early.
package codegen

import "fmt"

// Builtin is a shader-stage constant delivered as an entry-point parameter.
type Builtin uint8

const (
	GlobalInvocationID Builtin = iota
	LocalInvocationID
	WorkgroupID
	NumWorkgroups
	LocalInvocationIndex
)

// Attribute returns the WGSL builtin name.
func (b Builtin) Attribute() string {
	switch b {
	case GlobalInvocationID:
		return "global_invocation_id"
	case LocalInvocationID:
		return "local_invocation_id"
	case WorkgroupID:
		return "workgroup_id"
	case NumWorkgroups:
		return "num_workgroups"
	case LocalInvocationIndex:
		return "local_invocation_index"
	}
	return fmt.Sprintf("Builtin(%d)", uint8(b))
}

// WGSLType returns the type of the builtin's parameter.
func (b Builtin) WGSLType() string {
	if b == LocalInvocationIndex {
		return "u32"
	}
	return "vec3<u32>"
}

// InputKind selects how a shader input is bound.
type InputKind uint8

const (
	// InputBuiltin is a stage builtin such as the invocation id.
	InputBuiltin InputKind = iota
	// InputUniform is a single value in a uniform buffer.
	InputUniform
	// InputStorage is a read-only storage array indexed by invocation.
	InputStorage
	// InputWorkgroup is workgroup-shared memory.
	InputWorkgroup
	// InputOutput is a read-write storage array the kernel writes to.
	InputOutput
)

func (k InputKind) String() string {
	switch k {
	case InputBuiltin:
		return "builtin"
	case InputUniform:
		return "uniform"
	case InputStorage:
		return "storage"
	case InputWorkgroup:
		return "workgroup"
	case InputOutput:
		return "output"
	}
	return fmt.Sprintf("InputKind(%d)", uint8(k))
}

// ShaderInput describes one kernel binding or parameter.
type ShaderInput struct {
	Kind InputKind
	// Type is the WGSL scalar type of the value or array element.
	Type    string
	Builtin Builtin
}

// IsOutput reports whether the input is written by the kernel.
func (in ShaderInput) IsOutput() bool { return in.Kind == InputOutput }

// Storage returns a read-only storage input of elem.
func Storage(elem string) ShaderInput { return ShaderInput{Kind: InputStorage, Type: elem} }

// Uniform returns a uniform input of elem.
func Uniform(elem string) ShaderInput { return ShaderInput{Kind: InputUniform, Type: elem} }

// Output returns an output buffer of elem.
func Output(elem string) ShaderInput { return ShaderInput{Kind: InputOutput, Type: elem} }

// BuiltinInput returns a builtin parameter.
func BuiltinInput(b Builtin) ShaderInput {
	return ShaderInput{Kind: InputBuiltin, Type: b.WGSLType(), Builtin: b}
}

// ShaderIO lists a kernel's inputs and outputs in declaration order. The
// network's inputs map, in order, to the non-output entries.
type ShaderIO struct {
	Inputs []ShaderInput
}

// ElementwiseIO is the layout the dispatch executor drives: one storage
// input at binding 0 and one output at binding 1.
func ElementwiseIO(elem string) ShaderIO {
	return ShaderIO{Inputs: []ShaderInput{Storage(elem), Output(elem)}}
}

// NetworkInputs returns the non-output inputs in order.
func (io ShaderIO) NetworkInputs() []ShaderInput {
	var out []ShaderInput
	for _, in := range io.Inputs {
		if !in.IsOutput() {
			out = append(out, in)
		}
	}
	return out
}

// Outputs returns the output buffers in order.
func (io ShaderIO) Outputs() []ShaderInput {
	var out []ShaderInput
	for _, in := range io.Inputs {
		if in.IsOutput() {
			out = append(out, in)
		}
	}
	return out
}

// OutputBinding returns the binding of output i. Outputs are bound after
// every network input.
func (io ShaderIO) OutputBinding(i int) int {
	return len(io.NetworkInputs()) + i
}

// Binding returns the binding of entry pos of Inputs: its index among the
// network inputs, or OutputBinding for outputs. Bindings are unique
// whatever order outputs are declared in.
func (io ShaderIO) Binding(pos int) int {
	inputs, outputs := 0, 0
	for _, in := range io.Inputs[:pos] {
		if in.IsOutput() {
			outputs++
		} else {
			inputs++
		}
	}
	if io.Inputs[pos].IsOutput() {
		return io.OutputBinding(outputs)
	}
	return inputs
}

// ConstantsBinding returns the binding of the element-count block, placed
// after every input and output.
func (io ShaderIO) ConstantsBinding() int {
	return len(io.Inputs)
}

// Validate reports layouts the generator cannot emit.
func (io ShaderIO) Validate() error {
	if len(io.Outputs()) == 0 {
		return fmt.Errorf("%w: no output buffer", ErrInvalidIO)
	}
	for i, in := range io.Inputs {
		if in.Type == "" {
			return fmt.Errorf("%w: input %d (%s) has no type", ErrInvalidIO, i, in.Kind)
		}
	}
	return nil
}
