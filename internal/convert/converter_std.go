package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type stdlibConverter struct {
	opts Options
}

func (c stdlibConverter) Convert(ctx context.Context, input []byte, target Format) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	if !target.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, target)
	}

	src, srcFormat, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	output, err := encodeImage(src, target, c.opts.jpegQuality())
	if err != nil {
		return Result{}, err
	}

	bounds := src.Bounds()
	return Result{
		Data:         output,
		SourceFormat: srcFormat,
		Format:       target,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
	}, nil
}

func encodeImage(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, flattenAlpha(img), &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", ErrEncode, err)
		}
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("%w: png: %v", ErrEncode, err)
		}
	case FormatBMP:
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("%w: bmp: %v", ErrEncode, err)
		}
	case FormatTIFF:
		if err := tiff.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("%w: tiff: %v", ErrEncode, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	return buf.Bytes(), nil
}

// flattenAlpha composites translucent images over white; JPEG has no alpha
// channel and the encoder would otherwise drop it to black.
func flattenAlpha(src image.Image) image.Image {
	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		return src
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Over)
	return dst
}
