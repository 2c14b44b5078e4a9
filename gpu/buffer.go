package gpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/gpucore"
)

// Buffer errors.
var (
	// ErrInvalidBufferSize is returned when count or stride is zero, or the
	// initial contents do not fit.
	ErrInvalidBufferSize = errors.New("gpu: invalid buffer size")

	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("gpu: buffer has been destroyed")
)

// Usage is the set of ways a buffer is meant to be used. Binding
// descriptions are derived from it.
type Usage uint32

// Usage flags.
const (
	// UsageUniform marks a small read-only uniform block.
	UsageUniform Usage = 1 << iota

	// UsageStorageReadOnly marks a storage buffer that shaders only read.
	UsageStorageReadOnly

	// UsageStorage marks a storage buffer that shaders may write.
	UsageStorage

	// UsageVertex marks a vertex buffer.
	UsageVertex

	// UsageIndex marks an index buffer.
	UsageIndex

	// UsageCopySrc allows copying out of the buffer, e.g. for readback.
	UsageCopySrc

	// UsageCopyDst allows copying into the buffer.
	UsageCopyDst
)

// Has reports whether every flag in f is set.
func (u Usage) Has(f Usage) bool { return u&f == f }

// String lists the set flags.
func (u Usage) String() string {
	names := []struct {
		f    Usage
		name string
	}{
		{UsageUniform, "uniform"},
		{UsageStorageReadOnly, "storage-ro"},
		{UsageStorage, "storage"},
		{UsageVertex, "vertex"},
		{UsageIndex, "index"},
		{UsageCopySrc, "copy-src"},
		{UsageCopyDst, "copy-dst"},
	}
	s := ""
	for _, n := range names {
		if u&n.f == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
	}
	if s == "" {
		return "none"
	}
	return s
}

// bufferUsage returns the allocation flags for u.
func (u Usage) bufferUsage() gpucore.BufferUsage {
	var out gpucore.BufferUsage
	if u&UsageUniform != 0 {
		out |= gpucore.BufferUsageUniform
	}
	if u&(UsageStorage|UsageStorageReadOnly) != 0 {
		out |= gpucore.BufferUsageStorage
	}
	if u&UsageVertex != 0 {
		out |= gpucore.BufferUsageVertex
	}
	if u&UsageIndex != 0 {
		out |= gpucore.BufferUsageIndex
	}
	if u&UsageCopySrc != 0 {
		out |= gpucore.BufferUsageCopySrc
	}
	if u&UsageCopyDst != 0 {
		out |= gpucore.BufferUsageCopyDst
	}
	return out
}

// BufferDesc describes a buffer as a typed array.
type BufferDesc struct {
	Label  string
	Usage  Usage
	Count  uint64
	Stride uint64

	// Contents, when set, is uploaded at creation. It may be shorter than
	// Count*Stride; the remainder is zero.
	Contents []byte
}

// Buffer is a device-resident array of Count elements of Stride bytes.
type Buffer struct {
	adapter gpucore.GPUAdapter
	id      gpucore.BufferID
	label   string
	usage   Usage
	count   uint64
	stride  uint64
}

// NewBuffer allocates a buffer on ctx.
func NewBuffer(ctx *Context, desc BufferDesc) (*Buffer, error) {
	if desc.Count == 0 || desc.Stride == 0 {
		return nil, fmt.Errorf("%w: %s: %d x %d bytes", ErrInvalidBufferSize, desc.Label, desc.Count, desc.Stride)
	}
	size := desc.Count * desc.Stride
	if uint64(len(desc.Contents)) > size {
		return nil, fmt.Errorf("%w: %s: %d bytes of contents for %d byte buffer",
			ErrInvalidBufferSize, desc.Label, len(desc.Contents), size)
	}

	usage := desc.Usage
	if desc.Contents != nil {
		usage |= UsageCopyDst
	}

	id, err := ctx.adapter.CreateBuffer(&gpucore.BufferDesc{
		Label:    desc.Label,
		Size:     size,
		Usage:    usage.bufferUsage(),
		Contents: desc.Contents,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %s: %w", desc.Label, err)
	}

	oscuras.Logger().Debug("gpu: buffer created",
		"label", desc.Label,
		"usage", usage.String(),
		"count", desc.Count,
		"stride", desc.Stride,
		"bytes", size)

	return &Buffer{
		adapter: ctx.adapter,
		id:      id,
		label:   desc.Label,
		usage:   usage,
		count:   desc.Count,
		stride:  desc.Stride,
	}, nil
}

// ID returns the adapter handle.
func (b *Buffer) ID() gpucore.BufferID { return b.id }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Usage returns the usage the buffer was allocated with.
func (b *Buffer) Usage() Usage { return b.usage }

// Count returns the number of elements.
func (b *Buffer) Count() uint64 { return b.count }

// Stride returns the element size in bytes.
func (b *Buffer) Stride() uint64 { return b.stride }

// Size returns Count*Stride.
func (b *Buffer) Size() uint64 { return b.count * b.stride }

// DescribeBinding returns the layout entry for binding b at slot.
//
// Storage usage wins over uniform usage. A storage buffer is bound
// read-only when wantReadOnly is set or when it was allocated as
// UsageStorageReadOnly. A buffer with neither storage nor uniform usage
// fails with oscuras.ErrUnsupportedBindingUsage.
func (b *Buffer) DescribeBinding(slot uint32, visibility gpucore.ShaderStage, wantReadOnly bool) (gpucore.BindGroupLayoutEntry, error) {
	entry := gpucore.BindGroupLayoutEntry{
		Binding:    slot,
		Visibility: visibility,
	}
	switch {
	case b.usage&UsageStorage != 0:
		entry.Type = gpucore.BindingTypeStorageBuffer
		if wantReadOnly {
			entry.Type = gpucore.BindingTypeReadOnlyStorageBuffer
		}
	case b.usage&UsageStorageReadOnly != 0:
		entry.Type = gpucore.BindingTypeReadOnlyStorageBuffer
	case b.usage&UsageUniform != 0:
		entry.Type = gpucore.BindingTypeUniformBuffer
	default:
		return entry, fmt.Errorf("gpu: buffer %s (%s): %w", b.label, b.usage, oscuras.ErrUnsupportedBindingUsage)
	}
	entry.MinBindingSize = b.stride
	return entry, nil
}

// BindingEntry binds the whole buffer at slot.
func (b *Buffer) BindingEntry(slot uint32) gpucore.BindGroupEntry {
	return gpucore.BindGroupEntry{
		Binding: slot,
		Buffer:  b.id,
		Offset:  0,
		Size:    b.Size(),
	}
}

// Read copies the buffer contents back to the host.
func (b *Buffer) Read(ctx context.Context) ([]byte, error) {
	if b.id == gpucore.InvalidID {
		return nil, ErrBufferDestroyed
	}
	return b.adapter.ReadBuffer(ctx, b.id, 0, b.Size())
}

// Destroy releases the buffer. It is safe to call more than once.
func (b *Buffer) Destroy() {
	if b.id == gpucore.InvalidID {
		return
	}
	b.adapter.DestroyBuffer(b.id)
	b.id = gpucore.InvalidID
}
