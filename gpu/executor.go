// Package gpu dispatches compiled kernels on a compute device through the
// wgpu HAL and reads their results back.
//
// A dispatch binds the source buffer at binding 0, a zeroed destination of
// the same length at binding 1 and a 16-byte constants block holding the
// element count at binding 2. WebGPU has no push constants, so the count
// travels in a uniform buffer. The kernel runs ceil(n / workgroup)
// workgroups; invocations past n return without writing.
package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan backend

	"github.com/gogpu/nodegraph/gpu/codegen"
	"github.com/gogpu/nodegraph/internal/logger"
)

var (
	// ErrNoGPU is returned when no usable backend or adapter exists.
	ErrNoGPU = errors.New("gpu: no GPU available")
	// ErrClosed is returned by Execute after Close.
	ErrClosed = errors.New("gpu: executor closed")
	// ErrUnsupportedLayout is returned for kernels whose ShaderIO is not
	// one storage input and one output.
	ErrUnsupportedLayout = errors.New("gpu: unsupported shader layout")
	// ErrFenceTimeout is returned when the device does not finish in time.
	ErrFenceTimeout = errors.New("gpu: timed out waiting for fence")
)

const (
	constantsSize = 16
	wordSize      = 4
)

// Config configures an Executor.
type Config struct {
	// WorkgroupSize is used for kernels that do not record their own.
	WorkgroupSize uint32
	// FenceTimeout bounds the wait for one dispatch.
	FenceTimeout time.Duration
}

// DefaultConfig returns 64-thread workgroups and a 5 second fence timeout.
func DefaultConfig() Config {
	return Config{WorkgroupSize: 64, FenceTimeout: 5 * time.Second}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WorkgroupSize == 0 {
		c.WorkgroupSize = d.WorkgroupSize
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = d.FenceTimeout
	}
	return c
}

// Executor owns or borrows a device and runs kernels on it. Dispatches are
// serialized; an Executor is safe for concurrent use.
type Executor struct {
	mu       sync.Mutex
	cfg      Config
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
	name     string
}

// NewExecutor opens a Vulkan device, preferring discrete and integrated
// GPUs over software adapters.
func NewExecutor(cfg Config) (*Executor, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoGPU)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %v", ErrNoGPU, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters found", ErrNoGPU)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}
	logger.Get().Info("gpu: adapter selected", "name", selected.Info.Name, "type", selected.Info.DeviceType)
	return &Executor{
		cfg:      cfg.withDefaults(),
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		name:     selected.Info.Name,
	}, nil
}

// NewExecutorFromProvider borrows the device of an application that already
// owns one. The provider must also expose HalDevice() any and HalQueue()
// any returning hal.Device and hal.Queue. Close does not destroy a borrowed
// device.
func NewExecutorFromProvider(provider gpucontext.DeviceProvider, cfg Config) (*Executor, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}
	return NewExecutorWithDevice(device, queue, cfg), nil
}

// NewExecutorWithDevice runs kernels on a borrowed device and queue.
func NewExecutorWithDevice(device hal.Device, queue hal.Queue, cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.withDefaults(),
		device:   device,
		queue:    queue,
		external: true,
		name:     "external",
	}
}

// Name returns the adapter name.
func (e *Executor) Name() string { return e.name }

// Close releases the device unless it was borrowed.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.external {
		if e.device != nil {
			e.device.Destroy()
		}
		if e.instance != nil {
			e.instance.Destroy()
		}
	}
	e.device = nil
	e.queue = nil
	e.instance = nil
}

// WorkgroupCount returns the number of workgroups covering n elements.
func WorkgroupCount(n, size uint32) uint32 {
	if size == 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Constants encodes the element-count block bound after the buffers.
func Constants(n uint32) []byte {
	b := make([]byte, constantsSize)
	binary.LittleEndian.PutUint32(b, n)
	return b
}

// Execute runs shader once per element of input and returns the
// destination buffer, which always has len(input) elements.
func (e *Executor) Execute(shader *codegen.Shader, input []uint32) ([]uint32, error) {
	if err := checkLayout(shader.IO); err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return []uint32{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.device == nil {
		return nil, ErrClosed
	}

	wg := shader.WorkgroupSize
	if wg == 0 {
		wg = e.cfg.WorkgroupSize
	}
	n := uint32(len(input)) //nolint:gosec // buffer lengths fit uint32
	groups := WorkgroupCount(n, wg)
	log := logger.Get()
	log.Debug("gpu: dispatch", "elements", n, "workgroup_size", wg, "workgroups", groups)

	d, err := e.newDispatch(shader, input)
	defer d.release()
	if err != nil {
		return nil, err
	}
	if err := e.submit(d, groups); err != nil {
		return nil, err
	}

	readback := make([]byte, d.size)
	if err := e.queue.ReadBuffer(d.staging, 0, readback); err != nil {
		return nil, fmt.Errorf("gpu: readback: %w", err)
	}
	out := make([]uint32, len(input))
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(readback[i*wordSize:])
	}
	return out, nil
}

func checkLayout(io codegen.ShaderIO) error {
	ins, outs := io.NetworkInputs(), io.Outputs()
	if len(ins) != 1 || len(outs) != 1 || ins[0].Kind != codegen.InputStorage || io.Inputs[0].IsOutput() {
		return fmt.Errorf("%w: want storage input then output, got %d inputs and %d outputs", ErrUnsupportedLayout, len(ins), len(outs))
	}
	return nil
}

// dispatch holds the resources of one Execute call.
type dispatch struct {
	device    hal.Device
	size      uint64
	module    hal.ShaderModule
	layout    hal.BindGroupLayout
	pipeLay   hal.PipelineLayout
	pipeline  hal.ComputePipeline
	src       hal.Buffer
	dst       hal.Buffer
	staging   hal.Buffer
	constants hal.Buffer
	group     hal.BindGroup
}

func (e *Executor) newDispatch(shader *codegen.Shader, input []uint32) (*dispatch, error) {
	d := &dispatch{device: e.device, size: uint64(len(input) * wordSize)}
	var err error

	d.module, err = e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "nodegraph_kernel",
		Source: hal.ShaderSource{SPIRV: shader.SPIRV},
	})
	if err != nil {
		return d, fmt.Errorf("gpu: create shader module: %w", err)
	}
	d.layout, err = e.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "nodegraph_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
		},
	})
	if err != nil {
		return d, fmt.Errorf("gpu: create bind group layout: %w", err)
	}
	d.pipeLay, err = e.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "nodegraph_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{d.layout},
	})
	if err != nil {
		return d, fmt.Errorf("gpu: create pipeline layout: %w", err)
	}
	entry := shader.EntryPoint()
	if entry == "" {
		entry = "main"
	}
	d.pipeline, err = e.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "nodegraph_pipeline",
		Layout:  d.pipeLay,
		Compute: hal.ComputeState{Module: d.module, EntryPoint: entry},
	})
	if err != nil {
		return d, fmt.Errorf("gpu: create compute pipeline: %w", err)
	}

	buffers := []struct {
		dst   *hal.Buffer
		label string
		size  uint64
		usage gputypes.BufferUsage
	}{
		{&d.src, "nodegraph_src", d.size, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{&d.dst, "nodegraph_dst", d.size, gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst},
		{&d.staging, "nodegraph_staging", d.size, gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst},
		{&d.constants, "nodegraph_constants", constantsSize, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
	}
	for _, b := range buffers {
		*b.dst, err = e.device.CreateBuffer(&hal.BufferDescriptor{Label: b.label, Size: b.size, Usage: b.usage})
		if err != nil {
			return d, fmt.Errorf("gpu: create buffer %s: %w", b.label, err)
		}
	}

	src := make([]byte, d.size)
	for i, w := range input {
		binary.LittleEndian.PutUint32(src[i*wordSize:], w)
	}
	e.queue.WriteBuffer(d.src, 0, src)
	e.queue.WriteBuffer(d.dst, 0, make([]byte, d.size))
	e.queue.WriteBuffer(d.constants, 0, Constants(uint32(len(input)))) //nolint:gosec // checked by caller

	d.group, err = e.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "nodegraph_bind", Layout: d.layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: d.src.NativeHandle(), Offset: 0, Size: d.size}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: d.dst.NativeHandle(), Offset: 0, Size: d.size}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: d.constants.NativeHandle(), Offset: 0, Size: constantsSize}},
		},
	})
	if err != nil {
		return d, fmt.Errorf("gpu: create bind group: %w", err)
	}
	return d, nil
}

func (e *Executor) submit(d *dispatch, groups uint32) error {
	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "nodegraph_encoder"})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("nodegraph_dispatch"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "nodegraph_pass"})
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, d.group, nil)
	pass.Dispatch(groups, 1, 1)
	pass.End()
	encoder.CopyBufferToBuffer(d.dst, d.staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: d.size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	defer e.device.FreeCommandBuffer(cmdBuf)

	fence, err := e.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	defer e.device.DestroyFence(fence)
	if err := e.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}
	ok, err := e.device.Wait(fence, 1, e.cfg.FenceTimeout)
	if err != nil {
		return fmt.Errorf("gpu: wait for fence: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrFenceTimeout, e.cfg.FenceTimeout)
	}
	return nil
}

func (d *dispatch) release() {
	if d == nil {
		return
	}
	if d.group != nil {
		d.device.DestroyBindGroup(d.group)
	}
	for _, b := range []hal.Buffer{d.constants, d.staging, d.dst, d.src} {
		if b != nil {
			d.device.DestroyBuffer(b)
		}
	}
	if d.pipeline != nil {
		d.device.DestroyComputePipeline(d.pipeline)
	}
	if d.pipeLay != nil {
		d.device.DestroyPipelineLayout(d.pipeLay)
	}
	if d.layout != nil {
		d.device.DestroyBindGroupLayout(d.layout)
	}
	if d.module != nil {
		d.device.DestroyShaderModule(d.module)
	}
}
