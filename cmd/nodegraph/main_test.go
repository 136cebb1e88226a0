package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/nodegraph"
	"github.com/gogpu/nodegraph/gpu/codegen"
	"github.com/gogpu/nodegraph/nodes"
	"github.com/gogpu/nodegraph/script"
)

func TestEmitKernel(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "add3.zy"))
	if err != nil {
		t.Fatal(err)
	}
	reg := nodes.Registry()
	doc, err := script.Load(context.Background(), string(src), script.WithRegistry(reg))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := nodegraph.NewCompiler(reg, nodegraph.WithBackend(nodegraph.BackendCPU))

	dir := t.TempDir()
	if err := emitKernel(c, doc, dir, "u32", 128); err != nil {
		t.Fatalf("emitKernel: %v", err)
	}
	kernel, err := os.ReadFile(filepath.Join(dir, codegen.KernelFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"@workgroup_size(128)", "3u", "ops_AddNode"} {
		if !strings.Contains(string(kernel), want) {
			t.Errorf("kernel missing %q:\n%s", want, kernel)
		}
	}
	for _, name := range []string{codegen.ManifestFile, codegen.ToolchainFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	if err := emitKernel(c, doc, dir, "f64", 64); err == nil {
		t.Error("f64 has no GPU element type")
	}
}
