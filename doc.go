// Package nodegraph compiles dataflow graphs of registry nodes and runs
// them on the CPU or the GPU.
//
// # Overview
//
// An authored graph is a [document.Network]. The compiler expands nodes with
// several input-type combinations into adapter subnetworks, flattens the
// result into a [proto.Network], orders it topologically and hands it to a
// backend:
//
//   - cpu: every node becomes a type-erased [runtime.Node]; references are
//     wired with compose nodes and input-independent nodes are cached.
//   - gpu: the network is serialized to a WGSL compute kernel, compiled to
//     SPIR-V with naga and dispatched once per element of the input slice.
//
// # Quick Start
//
//	reg := nodes.Registry()
//	net := document.NewNetwork()
//	add := net.Add(&document.Node{
//	    Implementation: document.ProtoImpl(nodes.AddID),
//	    Inputs: []document.Input{
//	        document.ImportInput(types.Of[uint32](), 0),
//	        document.ValueInput(types.NewValue(uint32(3)), true),
//	    },
//	})
//	net.Exports = []document.Input{document.NodeInput(add)}
//
//	c := nodegraph.NewCompiler(reg)
//	out, err := c.Run(ctx, net, runtime.Box([]uint32{1, 2, 3}))
//
// # Backends
//
// Backends register by name; the GPU backend is preferred when present.
// When it cannot prepare or run a network the compiler falls back to the
// CPU backend and logs a warning. Use [WithBackend] to pin a backend and
// [WithCPUFallback] to disable the fallback.
//
// # Scripts
//
// Graphs can also be written as zygomys Lisp and loaded with script.Load;
// cmd/nodegraph runs such scripts from the command line.
//
// # Logging
//
// nodegraph is silent by default. See [SetLogger].
package nodegraph

