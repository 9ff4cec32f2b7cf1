package graphite

import (
	"strconv"
	"strings"

	"github.com/nerrad567/sensorlink/internal/telemetry"
)

// FormatBatch renders b as plaintext protocol lines, in measurement order.
func FormatBatch(prefix string, b telemetry.Batch) []byte {
	ts := strconv.FormatUint(b.Timestamp, 10)

	var sb strings.Builder
	for _, m := range b.Measurements {
		sb.WriteString(formatLine(prefix, m, ts))
	}
	return []byte(sb.String())
}

// formatLine renders one measurement. ts is the preformatted timestamp.
func formatLine(prefix string, m telemetry.Measurement, ts string) string {
	return sanitizePath(prefix+m.Name) + " " + FormatValue(m.Value) + " " + ts + "\n"
}

// FormatValue returns the shortest decimal that reads back as v.
func FormatValue(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// sanitizePath replaces the characters that would split a line (whitespace
// and line breaks) so a bad name cannot inject extra metrics.
func sanitizePath(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
