package domain

import (
	"bytes"
	"context"
	"time"
)

// Renderer turns a normalized HTML document into PDF bytes. Implementations
// own every browser resource they acquire and release it before returning.
type Renderer interface {
	Render(ctx context.Context, document string) ([]byte, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, document string) ([]byte, error)

func (f RendererFunc) Render(ctx context.Context, document string) ([]byte, error) {
	return f(ctx, document)
}

// PageSettings are the fixed layout and output options applied to every render.
type PageSettings struct {
	ViewportWidth     int
	ViewportHeight    int
	DeviceScaleFactor float64

	// Paper size and margins in inches.
	PaperWidth      float64
	PaperHeight     float64
	Margin          float64
	PrintBackground bool

	NavigationTimeout time.Duration
	LoadTimeout       time.Duration
}

// DefaultPageSettings is an A4 page rendered from an A4-proportioned viewport
// at ~96 DPI with half-inch margins.
func DefaultPageSettings() PageSettings {
	return PageSettings{
		ViewportWidth:     794,
		ViewportHeight:    1123,
		DeviceScaleFactor: 1,
		PaperWidth:        8.27,
		PaperHeight:       11.69,
		Margin:            0.5,
		PrintBackground:   true,
		NavigationTimeout: 15 * time.Second,
		LoadTimeout:       15 * time.Second,
	}
}

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether b starts with the PDF file signature.
func IsPDF(b []byte) bool {
	return bytes.HasPrefix(b, pdfMagic)
}
