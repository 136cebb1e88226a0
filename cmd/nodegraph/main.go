// Command nodegraph compiles a node graph script and runs it on the CPU or
// GPU backend.
//
// Usage:
//
//	nodegraph [flags] graph.zy
//
// Example:
//
//	nodegraph -backend gpu -type u32 -in 0:1024 add3.zy
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/nodegraph"
	"github.com/gogpu/nodegraph/document"
	"github.com/gogpu/nodegraph/gpu"
	"github.com/gogpu/nodegraph/gpu/codegen"
	"github.com/gogpu/nodegraph/nodes"
	"github.com/gogpu/nodegraph/runtime"
	"github.com/gogpu/nodegraph/script"
)

func main() {
	var (
		backend   = flag.String("backend", "", "backend to run on (default: highest priority available)")
		fallback  = flag.Bool("fallback", true, "fall back to the CPU backend when the selected one fails")
		workgroup = flag.Uint("workgroup", 64, "GPU workgroup size")
		cache     = flag.String("cache", "input-independent", "CPU cache policy: none, input-independent or all")
		elemType  = flag.String("type", "u32", "type of the network input")
		input     = flag.String("in", "", "network input: a value, a comma-separated list, or a range lo:hi")
		emit      = flag.String("emit", "", "write the kernel, manifest and toolchain pin into this directory")
		list      = flag.Bool("list", false, "list registered nodes and backends, then exit")
		timeout   = flag.Duration("timeout", 30*time.Second, "time limit for loading and running")
		verbose   = flag.Bool("v", false, "log at debug level to stderr")
	)
	flag.Parse()

	reg := nodes.Registry()
	if *list {
		for _, id := range reg.Names() {
			fmt.Println(id)
		}
		fmt.Println("backends:", nodegraph.AvailableBackends())
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	policy, err := parseCachePolicy(*cache)
	if err != nil {
		log.Fatal(err)
	}
	opts := []nodegraph.Option{
		nodegraph.WithBackend(*backend),
		nodegraph.WithCPUFallback(*fallback),
		nodegraph.WithCachePolicy(policy),
		nodegraph.WithWorkgroupSize(uint32(*workgroup)),
	}
	if *verbose {
		opts = append(opts, nodegraph.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}

	src, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read script: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	doc, err := script.Load(ctx, string(src), script.WithRegistry(reg))
	if err != nil {
		log.Fatal(err)
	}
	c := nodegraph.NewCompiler(reg, opts...)

	if *emit != "" {
		if err := emitKernel(c, doc, *emit, *elemType, uint32(*workgroup)); err != nil {
			log.Fatal(err)
		}
		log.Printf("Kernel written to %s\n", *emit)
		return
	}

	var inputs []runtime.Any
	if *input != "" {
		in, err := parseInput(*input, *elemType)
		if err != nil {
			log.Fatal(err)
		}
		inputs = append(inputs, in)
	}
	out, err := c.Run(ctx, doc, inputs...)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(out)
}

func emitKernel(c *nodegraph.Compiler, doc *document.Network, dir, typeName string, workgroup uint32) error {
	t, ok := script.Types[typeName]
	if !ok {
		return fmt.Errorf("unknown type %q", typeName)
	}
	elem, ok := gpu.ElementType(t.String())
	if !ok {
		return fmt.Errorf("type %s has no GPU element type", t)
	}
	net, err := c.Lower(doc)
	if err != nil {
		return err
	}
	opts := codegen.DefaultOptions()
	opts.ComputeThreads = workgroup
	_, err = codegen.CreateFiles(dir, net, codegen.ElementwiseIO(elem), nodes.Library(), opts)
	return err
}
