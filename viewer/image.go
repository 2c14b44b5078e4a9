package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gogpu/oscuras/gpucore"
	"github.com/gogpu/oscuras/pathtracer"
)

// Format is an image file format.
type Format int

// Supported formats.
const (
	FormatPNG Format = iota
	FormatBMP
	FormatTIFF
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("viewer: unknown image format")

// ErrNoFrame is returned when encoding before any frame was presented.
var ErrNoFrame = errors.New("viewer: no frame presented")

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatBMP:
		return "bmp"
	case FormatTIFF:
		return "tiff"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Extension returns the file extension with a leading dot.
func (f Format) Extension() string { return "." + f.String() }

// ParseFormat parses a format name or file extension, case insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png":
		return FormatPNG, nil
	case "bmp":
		return FormatBMP, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath returns the format implied by a file name's extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return fmt.Errorf("%w: %v", ErrUnknownFormat, f)
	}
}

// ReadImage reads the engine's display texture back into an image.
func ReadImage(ctx context.Context, e *pathtracer.Engine) (*image.RGBA, error) {
	tex := e.Texture()
	w, h := tex.Size()
	texels, err := tex.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("viewer: read display texture: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	if len(texels) < len(img.Pix) {
		return nil, fmt.Errorf("viewer: display texture is %d bytes, want %d", len(texels), len(img.Pix))
	}
	copy(img.Pix, texels)
	if tex.Format() == gpucore.TextureFormatBGRA8Unorm {
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	return img, nil
}

// ImagePresenter keeps the most recent frame as an image.
type ImagePresenter struct {
	mu   sync.Mutex
	last *image.RGBA
}

// NewImagePresenter returns an empty presenter.
func NewImagePresenter() *ImagePresenter { return &ImagePresenter{} }

// Present reads back the display texture.
func (p *ImagePresenter) Present(ctx context.Context, e *pathtracer.Engine) error {
	img, err := ReadImage(ctx, e)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.last = img
	p.mu.Unlock()
	return nil
}

// Image returns the last presented frame, or nil.
func (p *ImagePresenter) Image() *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Encode writes the last presented frame to w.
func (p *ImagePresenter) Encode(w io.Writer, f Format) error {
	img := p.Image()
	if img == nil {
		return ErrNoFrame
	}
	return Encode(w, img, f)
}
