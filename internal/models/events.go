package models

import "time"

// Event type constants
const (
	EventBatchPublished = "SIGNAL_BATCH_PUBLISHED"
	EventBatchRejected  = "SIGNAL_BATCH_REJECTED"
	EventDailyBarClosed = "DAILY_BAR_CLOSED"
)

// BatchEvent is published to Kafka after every audited batch
type BatchEvent struct {
	EventType      string          `json:"event_type"`
	BatchID        string          `json:"batch_id"`
	TradingDay     string          `json:"trading_day"`
	Recommendation string          `json:"recommendation"`
	RealDataRatio  float64         `json:"real_data_ratio"`
	Issues         []QualityIssue  `json:"issues,omitempty"`
	Signals        []SignalSummary `json:"signals,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// SignalSummary is the compact per-symbol part of a BatchEvent
type SignalSummary struct {
	Symbol         string   `json:"symbol"`
	Status         string   `json:"status"`
	Signal         string   `json:"signal,omitempty"`
	CompositeScore *float64 `json:"composite_score,omitempty"`
	Reliability    string   `json:"reliability,omitempty"`
}

// BarEvent is consumed from the ingestion service when a daily bar closes
type BarEvent struct {
	EventType  string    `json:"event_type"`
	Symbol     string    `json:"symbol"`
	TradingDay string    `json:"trading_day"`
	Source     string    `json:"source,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
