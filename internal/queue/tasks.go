package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeConversionRecord = "conversion:record"

type ConversionRecordPayload struct {
	ConversionID string    `json:"conversion_id"`
	SourceFormat string    `json:"source_format"`
	TargetFormat string    `json:"target_format"`
	InputBytes   int64     `json:"input_bytes"`
	OutputBytes  int64     `json:"output_bytes"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	ObjectKey    string    `json:"object_key,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

func NewConversionRecordTask(payload ConversionRecordPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal conversion record payload: %w", err)
	}
	return asynq.NewTask(TypeConversionRecord, body), nil
}

func ParseConversionRecordPayload(task *asynq.Task) (ConversionRecordPayload, error) {
	var payload ConversionRecordPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConversionRecordPayload{}, fmt.Errorf("unmarshal conversion record payload: %w", err)
	}
	return payload, nil
}
