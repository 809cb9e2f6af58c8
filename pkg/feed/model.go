package feed

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// CurrentReading is the live measurement published by the meter API.
type CurrentReading struct {
	Timestamp string  `json:"timestamp"`
	CurrentA  float64 `json:"current_a"`
}

// HistoryRecord is one entry of the device's replayed history, as
// served by the /history endpoint.
type HistoryRecord struct {
	Timestamp string  `json:"timestamp"`
	CurrentA  float64 `json:"current_a"`
}

// HistorySnapshot is the /history response body.
type HistorySnapshot struct {
	Complete bool            `json:"complete"`
	Records  []HistoryRecord `json:"records"`
}

func (r *CurrentReading) ToJsonBytes() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		logrus.Errorf("Failed to marshal reading: %v", err)
		return nil
	}
	return data
}

// ReadingFromJsonBytes decodes a broadcast message, nil when malformed.
func ReadingFromJsonBytes(data []byte) *CurrentReading {
	var reading CurrentReading
	if err := json.Unmarshal(data, &reading); err != nil {
		return nil
	}
	return &reading
}
