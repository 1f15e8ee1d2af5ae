//go:build govips && cgo

package convert

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsConverter hands BMP output to the pure Go encoder; libvips has no
// BMP saver.
type govipsConverter struct {
	opts     Options
	fallback stdlibConverter
}

func (c govipsConverter) Convert(ctx context.Context, input []byte, target Format) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	if !target.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, target)
	}
	if target == FormatBMP {
		return c.fallback.Convert(ctx, input, target)
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer img.Close()

	srcFormat := strings.ToLower(vips.ImageTypes[img.Format()])

	data, err := exportGovipsImage(img, target, c.opts.jpegQuality())
	if err != nil {
		return Result{}, err
	}

	return Result{
		Data:         data,
		SourceFormat: srcFormat,
		Format:       target,
		Width:        img.Width(),
		Height:       img.Height(),
	}, nil
}

func exportGovipsImage(img *vips.ImageRef, format Format, quality int) ([]byte, error) {
	switch format {
	case FormatJPEG:
		if img.HasAlpha() {
			if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
				return nil, fmt.Errorf("%w: flatten alpha: %v", ErrEncode, err)
			}
		}
		params := vips.NewJpegExportParams()
		params.Quality = quality
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", ErrEncode, err)
		}
		return data, nil
	case FormatPNG:
		data, _, err := img.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("%w: png: %v", ErrEncode, err)
		}
		return data, nil
	case FormatTIFF:
		data, _, err := img.ExportTiff(vips.NewTiffExportParams())
		if err != nil {
			return nil, fmt.Errorf("%w: tiff: %v", ErrEncode, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
