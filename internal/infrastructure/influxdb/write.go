package influxdb

import (
	"context"
	"fmt"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/sensorlink/internal/telemetry"
)

// Send writes b as one point per measurement in a single request. The write
// is all or nothing from the caller's view: any error means the batch is
// resent later.
func (c *Client) Send(ctx context.Context, b telemetry.Batch) error {
	if b.Len() == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.writeAPI.WritePoint(ctx, c.points(b)...); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	c.logger.Debug("batch written", "timestamp", b.Timestamp, "points", b.Len())
	return nil
}

// points converts b to line protocol points sharing the batch timestamp.
func (c *Client) points(b telemetry.Batch) []*write.Point {
	ts := b.Time()
	points := make([]*write.Point, 0, b.Len())
	for _, m := range b.Measurements {
		points = append(points, write.NewPoint(
			c.measurement,
			map[string]string{
				"site":   c.site,
				"metric": m.Name,
			},
			map[string]interface{}{
				"value": float64(m.Value),
			},
			ts,
		))
	}
	return points
}
