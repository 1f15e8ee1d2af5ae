package convert

import "context"

type Converter interface {
	Convert(ctx context.Context, input []byte, target Format) (Result, error)
}

type Result struct {
	Data         []byte
	SourceFormat string
	Format       Format
	Width        int
	Height       int
}

type Options struct {
	// JPEGQuality is clamped to 1..100; zero selects 75.
	JPEGQuality int
}

func (o Options) jpegQuality() int {
	if o.JPEGQuality <= 0 {
		return 75
	}
	if o.JPEGQuality > 100 {
		return 100
	}
	return o.JPEGQuality
}

// New returns the converter selected at build time: libvips when built with
// the govips tag and cgo, the pure Go codecs otherwise.
func New(opts Options) (Converter, error) {
	return newConverter(opts)
}
