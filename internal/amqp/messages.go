package amqp

import (
	"encoding/json"
	"time"
)

// RecomputeMessage asks the worker to recompute one report and store a
// snapshot of the result. Year and Month are only meaningful for the
// bookkeeping reports, MeterID for the meter report.
type RecomputeMessage struct {
	Report    string    `json:"report"`
	Year      int       `json:"year,omitempty"`
	Month     int       `json:"month,omitempty"`
	MeterID   string    `json:"meterId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecomputeMessage(report string, year, month int, meterID string) *RecomputeMessage {
	return &RecomputeMessage{
		Report:    report,
		Year:      year,
		Month:     month,
		MeterID:   meterID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecomputeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecomputeMessageFromJSON creates a message from JSON bytes
func RecomputeMessageFromJSON(data []byte) (*RecomputeMessage, error) {
	var msg RecomputeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
