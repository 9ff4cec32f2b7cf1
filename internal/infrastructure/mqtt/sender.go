package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/sensorlink/internal/telemetry"
)

// BatchMessage is the JSON payload of one telemetry batch. Measurements keep
// their poll order.
type BatchMessage struct {
	Site         string              `json:"site"`
	Timestamp    uint64              `json:"timestamp"`
	Measurements []MeasurementRecord `json:"measurements"`
}

// MeasurementRecord is one entry of BatchMessage.
type MeasurementRecord struct {
	Name  string  `json:"name"`
	Value float32 `json:"value"`
}

// EncodeBatch renders b as a BatchMessage for site.
func EncodeBatch(site string, b telemetry.Batch) ([]byte, error) {
	msg := BatchMessage{
		Site:         site,
		Timestamp:    b.Timestamp,
		Measurements: make([]MeasurementRecord, 0, b.Len()),
	}
	for _, m := range b.Measurements {
		msg.Measurements = append(msg.Measurements, MeasurementRecord{Name: m.Name, Value: m.Value})
	}
	return json.Marshal(msg)
}

// Sender publishes telemetry batches to the node's telemetry topic.
// It satisfies pipeline.Sender.
type Sender struct {
	client *Client
}

// NewSender creates a Sender on client.
func NewSender(client *Client) *Sender {
	return &Sender{client: client}
}

// Send connects if needed and publishes b, waiting for the broker's
// acknowledgement at the configured QoS. An empty batch is a no-op.
func (s *Sender) Send(ctx context.Context, b telemetry.Batch) error {
	if b.Len() == 0 {
		return nil
	}

	payload, err := EncodeBatch(s.client.topics.Site, b)
	if err != nil {
		return fmt.Errorf("%w: encoding batch: %w", ErrPublishFailed, err)
	}

	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	return s.client.Publish(ctx, s.client.topics.Telemetry(), payload, s.client.QoS(), false)
}
