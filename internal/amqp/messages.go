package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"ocp/internal/overlap"
)

// AnalysisRequestMessage asks a worker to run the overlap analysis. An empty
// category list means every category in the data source.
type AnalysisRequestMessage struct {
	ID         string    `json:"id"`
	Categories []string  `json:"categories,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewAnalysisRequestMessage creates a request with a fresh id
func NewAnalysisRequestMessage(categories []string) *AnalysisRequestMessage {
	return &AnalysisRequestMessage{
		ID:         uuid.NewString(),
		Categories: categories,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *AnalysisRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AnalysisRequestMessageFromJSON creates a message from JSON bytes
func AnalysisRequestMessageFromJSON(data []byte) (*AnalysisRequestMessage, error) {
	var msg AnalysisRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AnalysisCompletedMessage announces a finished run. Consumers fetch the rows
// from storage by RunID.
type AnalysisCompletedMessage struct {
	RunID             string    `json:"run_id"`
	RequestID         string    `json:"request_id,omitempty"`
	Categories        []string  `json:"categories"`
	Groups            int       `json:"groups"`
	Rows              int       `json:"rows"`
	TotalSavingsCents int64     `json:"total_savings_cents"`
	Timestamp         time.Time `json:"timestamp"`
}

func NewAnalysisCompletedMessage(runID, requestID string, res overlap.Result) *AnalysisCompletedMessage {
	msg := &AnalysisCompletedMessage{
		RunID:             runID,
		RequestID:         requestID,
		Categories:        make([]string, 0, len(res.Categories)),
		Rows:              len(res.Rows),
		TotalSavingsCents: res.Total.Cents,
		Timestamp:         time.Now(),
	}
	for _, cr := range res.Categories {
		msg.Categories = append(msg.Categories, cr.Category)
		msg.Groups += cr.Groups
	}
	return msg
}

func (m *AnalysisCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AnalysisCompletedMessageFromJSON(data []byte) (*AnalysisCompletedMessage, error) {
	var msg AnalysisCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
