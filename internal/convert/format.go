package convert

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Format string

const (
	FormatJPEG Format = "JPEG"
	FormatPNG  Format = "PNG"
	FormatBMP  Format = "BMP"
	FormatTIFF Format = "TIFF"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrDecode            = errors.New("decode image")
	ErrEncode            = errors.New("encode image")
)

// SupportedFormats is the allow-list in the order it is advertised.
var SupportedFormats = []Format{FormatJPEG, FormatPNG, FormatBMP, FormatTIFF}

var (
	validate  = validator.New()
	formatTag = "required,oneof=" + strings.Join(FormatNames(), " ")
)

// ParseFormat upper-cases raw and checks it against the allow-list.
// Surrounding whitespace is not stripped, so " png " is rejected.
func ParseFormat(raw string) (Format, error) {
	name := NormalizeFormatName(raw)
	if f := Format(name); f.Valid() {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// NormalizeFormatName is the form used both for lookup and for error messages.
func NormalizeFormatName(raw string) string {
	return strings.ToUpper(raw)
}

func (f Format) ContentType() string {
	return "image/" + strings.ToLower(string(f))
}

func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatTIFF:
		return "tiff"
	default:
		return strings.ToLower(string(f))
	}
}

func (f Format) Valid() bool {
	return validate.Var(string(f), formatTag) == nil
}

// FormatNames lists the allow-list as plain strings.
func FormatNames() []string {
	names := make([]string, 0, len(SupportedFormats))
	for _, f := range SupportedFormats {
		names = append(names, string(f))
	}
	return names
}
