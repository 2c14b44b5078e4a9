package gpucore

import "context"

// GPUAdapter abstracts over device backends.
//
// The pathtracing engine is written once against this interface; thin
// adapters translate it to gogpu/wgpu HAL or to the host reference device.
// Implementations must be safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and are never reused
type GPUAdapter interface {
	// === Capabilities ===

	// Info describes the underlying device.
	Info() AdapterInfo

	// MaxWorkgroupSize returns the maximum workgroup size in each dimension.
	MaxWorkgroupSize() [3]uint32

	// MaxBufferSize returns the maximum buffer size in bytes.
	MaxBufferSize() uint64

	// === Shaders ===

	// CreateShaderModule creates a shader module from compiled SPIR-V.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// === Buffers ===

	// CreateBuffer allocates a buffer and uploads desc.Contents if set.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer writes data to a buffer at offset.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer copies size bytes starting at offset back to the host.
	// It waits for all previously submitted work.
	ReadBuffer(ctx context.Context, id BufferID, offset, size uint64) ([]byte, error)

	// === Textures and samplers ===

	// CreateTexture creates a 2D texture.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture.
	DestroyTexture(id TextureID)

	// CreateTextureView creates a full view of a texture.
	CreateTextureView(texture TextureID, label string) (TextureViewID, error)

	// DestroyTextureView releases a texture view.
	DestroyTextureView(id TextureViewID)

	// ReadTexture returns the texels of a texture as tightly packed rows.
	// It waits for all previously submitted work.
	ReadTexture(ctx context.Context, id TextureID) ([]byte, error)

	// CreateSampler creates a sampler.
	CreateSampler(desc *SamplerDesc) (SamplerID, error)

	// DestroySampler releases a sampler.
	DestroySampler(id SamplerID)

	// === Pipelines ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout combines bind group layouts into a pipeline layout.
	CreatePipelineLayout(label string, layouts []BindGroupLayoutID) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup binds resources to a layout.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command recording and execution ===

	// CreateCommandEncoder starts recording a command buffer.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit executes finished command buffers in order and waits for
	// them to complete. Command buffers are consumed by Submit.
	Submit(ctx context.Context, buffers ...CommandBufferID) error
}

// CommandEncoder records compute passes into a command buffer.
//
// Passes execute in the order they were begun, and every pass observes the
// writes of the passes before it.
type CommandEncoder interface {
	// BeginComputePass begins a compute pass. The previous pass must have
	// been ended.
	BeginComputePass(label string) ComputePassEncoder

	// Finish ends recording and returns the command buffer.
	Finish() (CommandBufferID, error)

	// Discard abandons recording.
	Discard()
}

// ComputePassEncoder records compute commands.
//
// Usage:
//  1. Obtain encoder from CommandEncoder.BeginComputePass()
//  2. Set pipeline and bind groups
//  3. Dispatch compute workgroups
//  4. Call End() to finish recording
//
// The encoder is single-use and cannot be reused after End().
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup sets a bind group at the specified index.
	SetBindGroup(index uint32, group BindGroupID)

	// Dispatch dispatches compute workgroups.
	// Total invocations = x * y * z * workgroup size.
	Dispatch(x, y, z uint32)

	// End finishes the compute pass.
	End()
}

// KernelHost is implemented by adapters that execute compute pipelines on
// the host, looking kernels up by ShaderModuleDesc.Name. Such adapters do
// not read ShaderModuleDesc.SPIRV.
type KernelHost interface {
	HostKernels() bool
}
