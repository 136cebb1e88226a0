package codegen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/nodegraph/proto"
)

// Names of the files CreateFiles writes into a compile directory.
const (
	ManifestFile  = "manifest.toml"
	ToolchainFile = "toolchain.toml"
	KernelFile    = "src/kernel.wgsl"
)

// Manifest renders the kernel package manifest.
func Manifest(opts Options) (string, error) {
	opts = opts.withDefaults()
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "manifest.toml.tmpl", struct {
		Name          string
		Authors       []string
		EntryPoint    string
		WorkgroupSize uint32
	}{opts.Metadata.Name, opts.Metadata.Authors, opts.EntryPoint, opts.ComputeThreads})
	if err != nil {
		return "", fmt.Errorf("codegen: render manifest: %w", err)
	}
	return buf.String(), nil
}

// Toolchain returns the toolchain pin written next to the manifest.
func Toolchain() string {
	b, err := templateFS.ReadFile("templates/toolchain.toml")
	if err != nil {
		panic(err) // embedded at build time
	}
	return string(b)
}

// CreateFiles writes the manifest, the toolchain pin and the serialized
// kernel into dir, creating dir/src as needed. It returns the kernel source.
func CreateFiles(dir string, net *proto.Network, io ShaderIO, lib Library, opts Options) (string, error) {
	source, err := Serialize(net, io, lib, opts)
	if err != nil {
		return "", err
	}
	manifest, err := Manifest(opts)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(KernelFile)), 0o755); err != nil {
		return "", fmt.Errorf("codegen: create compile dir: %w", err)
	}
	files := []struct {
		name string
		data string
	}{
		{ManifestFile, manifest},
		{ToolchainFile, Toolchain()},
		{KernelFile, source},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(f.name)), []byte(f.data), 0o644); err != nil {
			return "", fmt.Errorf("codegen: write %s: %w", f.name, err)
		}
	}
	return source, nil
}
