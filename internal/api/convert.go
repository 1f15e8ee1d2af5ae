package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/pixelkit/internal/convert"
	"github.com/dunamismax/pixelkit/internal/id"
	"github.com/dunamismax/pixelkit/internal/queue"
)

const (
	// Parts beyond this spill to temporary files.
	multipartMemoryBytes = 8 << 20

	headerConversionID = "X-Conversion-ID"

	errMissingParams = "Both file and format parameters are required."
)

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, errMissingParams)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	formats, hasFormat := r.MultipartForm.Value["format"]
	files, hasFile := r.MultipartForm.File["file"]
	if !hasFormat || len(formats) == 0 || !hasFile || len(files) == 0 {
		writeError(w, http.StatusBadRequest, errMissingParams)
		return
	}

	target, err := convert.ParseFormat(formats[0])
	if err != nil {
		s.metrics.conversions.WithLabelValues("unsupported", "rejected").Inc()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported format '%s'.", convert.NormalizeFormatName(formats[0])))
		return
	}

	input, err := readUpload(files[0])
	if err != nil {
		s.logger.Error().Err(err).Str("filename", files[0].Filename).Msg("read upload failed")
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	requestedAt := time.Now().UTC()
	result, err := s.converter.Convert(r.Context(), input, target)
	if err != nil {
		s.metrics.conversions.WithLabelValues(string(target), "failed").Inc()
		s.logger.Warn().Err(err).Str("format", string(target)).Int("input_bytes", len(input)).Msg("conversion failed")
		switch {
		case errors.Is(err, convert.ErrDecode):
			writeError(w, http.StatusInternalServerError, "failed to decode image")
		case errors.Is(err, convert.ErrEncode):
			writeError(w, http.StatusInternalServerError, "failed to encode image")
		default:
			writeError(w, http.StatusInternalServerError, "conversion failed")
		}
		return
	}
	s.metrics.conversions.WithLabelValues(string(target), "succeeded").Inc()

	if conversionID := s.recordConversion(r.Context(), len(input), result, requestedAt); conversionID != "" {
		w.Header().Set(headerConversionID, conversionID)
	}

	w.Header().Set("Content-Type", target.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		s.logger.Debug().Err(err).Msg("write conversion response failed")
	}
}

// recordConversion archives the output and enqueues its audit record. Both
// steps are best effort; it returns "" when neither is configured.
func (s *Server) recordConversion(ctx context.Context, inputBytes int, result convert.Result, requestedAt time.Time) string {
	if s.archive == nil && s.recorder == nil {
		return ""
	}

	conversionID := id.New()
	objectKey := ""

	if s.archive != nil {
		key, err := s.archive.ArchiveConversion(ctx, conversionID, result.Format.Extension(), result.Format.ContentType(), result.Data)
		if err != nil {
			s.metrics.archiveFailures.Inc()
			s.logger.Error().Err(err).Str("conversion_id", conversionID).Msg("archive conversion failed")
		} else {
			objectKey = key
		}
	}

	if s.recorder != nil {
		info, err := s.recorder.EnqueueConversionRecord(ctx, queue.ConversionRecordPayload{
			ConversionID: conversionID,
			SourceFormat: result.SourceFormat,
			TargetFormat: string(result.Format),
			InputBytes:   int64(inputBytes),
			OutputBytes:  int64(len(result.Data)),
			Width:        result.Width,
			Height:       result.Height,
			ObjectKey:    objectKey,
			RequestedAt:  requestedAt,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("conversion_id", conversionID).Msg("enqueue conversion record failed")
		} else {
			s.metrics.recordsEnqueued.WithLabelValues(info.Queue).Inc()
		}
	}

	return conversionID
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}
