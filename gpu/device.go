// Package gpu defines the narrow device capability consumed by the texture
// pool and batch renderer, plus an adapter backed by gogpu/wgpu's HAL.
//
// The Device interface is deliberately small: texture and buffer lifecycle,
// pixel upload, binding-slot management, indexed draws, and the hardware
// texture-unit limit. Callers supply any implementation; tests use in-memory
// fakes.
package gpu

import "errors"

// Device errors.
var (
	// ErrInvalidDimensions is returned for non-positive texture sizes.
	ErrInvalidDimensions = errors.New("gpu: invalid texture dimensions")

	// ErrTextureNotFound is returned when an ID does not name a live texture.
	ErrTextureNotFound = errors.New("gpu: texture not found")

	// ErrBufferNotFound is returned when an ID does not name a live buffer.
	ErrBufferNotFound = errors.New("gpu: buffer not found")

	// ErrUnitOutOfRange is returned when a binding slot exceeds the
	// hardware limit.
	ErrUnitOutOfRange = errors.New("gpu: texture unit out of range")
)

// TextureID identifies a device texture. Zero is never a valid ID.
type TextureID uint64

// BufferID identifies a device buffer. Zero is never a valid ID.
type BufferID uint64

// BufferUsage selects what a buffer is bound as.
type BufferUsage uint8

const (
	// BufferUsageVertex marks a vertex buffer.
	BufferUsageVertex BufferUsage = iota

	// BufferUsageIndex marks an index buffer.
	BufferUsageIndex
)

// TextureDescriptor configures texture creation.
type TextureDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texture dimensions in pixels.
	Width  int
	Height int

	// Format is the pixel format.
	Format TextureFormat

	// Mipmaps requests a full mip chain.
	Mipmaps bool
}

// Device is the GPU context capability the resource core renders through.
// Implementations must be safe for concurrent use.
type Device interface {
	// CreateTexture allocates a texture and returns its handle.
	CreateTexture(desc TextureDescriptor) (TextureID, error)

	// DestroyTexture releases a texture. Unknown IDs are ignored.
	DestroyTexture(id TextureID)

	// WriteTexture uploads pixel data to mip level zero.
	WriteTexture(id TextureID, data []byte) error

	// CreateBuffer allocates a buffer of the given byte size.
	CreateBuffer(size int, usage BufferUsage) (BufferID, error)

	// WriteBuffer writes data into a buffer at the given offset.
	WriteBuffer(id BufferID, offset uint64, data []byte)

	// DestroyBuffer releases a buffer. Unknown IDs are ignored.
	DestroyBuffer(id BufferID)

	// BindTexture binds a texture to a sampling unit.
	BindTexture(id TextureID, unit int) error

	// UnbindUnit clears a sampling unit.
	UnbindUnit(unit int)

	// DrawIndexed issues one indexed draw call using the currently bound
	// vertex and index buffers.
	DrawIndexed(indexCount int)

	// MaxTextureUnits reports the hardware texture-unit limit.
	MaxTextureUnits() int
}
