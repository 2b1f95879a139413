// Package events defines the portfolio events a run emits and the publishers that ship them.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies an event
type EventType string

const (
	PositionOpened        EventType = "POSITION_OPENED"
	PositionClosed        EventType = "POSITION_CLOSED"
	RealizedGainsRecorded EventType = "REALIZED_GAINS_RECORDED"
	RunCompleted          EventType = "RUN_COMPLETED"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
	// Key is the partition key; ticker for position events
	Key() string
}

// PositionOpenedData contains data for PositionOpened events
type PositionOpenedData struct {
	Ticker  string  `json:"ticker"`
	Name    string  `json:"name"`
	BuyDate string  `json:"buy_date"`
	Shares  float64 `json:"shares"`
}

// EventType returns the event type for PositionOpenedData
func (d *PositionOpenedData) EventType() EventType { return PositionOpened }

// Key returns the ticker
func (d *PositionOpenedData) Key() string { return d.Ticker }

// PositionClosedData contains data for PositionClosed events
type PositionClosedData struct {
	Ticker             string  `json:"ticker"`
	BuyDate            string  `json:"buy_date"`
	SellDate           string  `json:"sell_date"`
	Shares             float64 `json:"shares"`
	BuyDateValue       float64 `json:"buy_date_value"`
	SellValue          float64 `json:"sell_value"`
	PerformancePercent float64 `json:"performance_percent"`
}

// EventType returns the event type for PositionClosedData
func (d *PositionClosedData) EventType() EventType { return PositionClosed }

// Key returns the ticker
func (d *PositionClosedData) Key() string { return d.Ticker }

// RealizedGainsRecordedData contains data for RealizedGainsRecorded events
type RealizedGainsRecordedData struct {
	Date                string  `json:"date"`
	TotalBuyValue       float64 `json:"total_buy_value"`
	TotalSellValue      float64 `json:"total_sell_value"`
	PerformancePercent  float64 `json:"performance_percent"`
	LifetimePerformance float64 `json:"lifetime_performance_percent"`
}

// EventType returns the event type for RealizedGainsRecordedData
func (d *RealizedGainsRecordedData) EventType() EventType { return RealizedGainsRecorded }

// Key returns the ledger date
func (d *RealizedGainsRecordedData) Key() string { return d.Date }

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	Date     string `json:"date"`
	Closed   int    `json:"closed"`
	Opened   int    `json:"opened"`
	Failures int    `json:"failures"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType { return RunCompleted }

// Key returns the run date
func (d *RunCompletedData) Key() string { return d.Date }

// Event is one published event
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// New creates an event for data, stamped now
func New(runID string, data EventData) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      data.EventType(),
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// UnmarshalJSON decodes the data payload according to the event type
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		e.Data = nil
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case PositionOpened:
		eventData = &PositionOpenedData{}
	case PositionClosed:
		eventData = &PositionClosedData{}
	case RealizedGainsRecorded:
		eventData = &RealizedGainsRecordedData{}
	case RunCompleted:
		eventData = &RunCompletedData{}
	default:
		return fmt.Errorf("unknown event type %q", aux.Type)
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", aux.Type, err)
	}
	e.Data = eventData
	return nil
}
