package domain

import (
	"errors"
	"strings"
	"time"
)

// ConversionRecord is the audit entry kept for every archived conversion.
type ConversionRecord struct {
	ID           string    `json:"id"`
	SourceFormat string    `json:"source_format"`
	TargetFormat string    `json:"target_format"`
	InputBytes   int64     `json:"input_bytes"`
	OutputBytes  int64     `json:"output_bytes"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	ObjectKey    string    `json:"object_key,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
	RecordedAt   time.Time `json:"recorded_at"`
}

func (r ConversionRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(r.TargetFormat) == "" {
		return errors.New("target_format is required")
	}
	if r.InputBytes < 0 || r.OutputBytes < 0 {
		return errors.New("byte counts must not be negative")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return errors.New("dimensions must be positive")
	}
	return nil
}

// BytesSaved is the size reduction, clamped at zero.
func (r ConversionRecord) BytesSaved() int64 {
	saved := r.InputBytes - r.OutputBytes
	if saved < 0 {
		return 0
	}
	return saved
}

// Pixels is the pixel count of the converted image.
func (r ConversionRecord) Pixels() int64 {
	return int64(r.Width) * int64(r.Height)
}
