package models

import "time"

// Quality recommendations
const (
	QualityCache  = "CACHE"
	QualityWarn   = "WARN"
	QualityReject = "REJECT"
)

// QualityIssue names a pattern detected in a batch
type QualityIssue struct {
	Gate     string `json:"gate"`
	Severity string `json:"severity"`
	Reason   string `json:"reason"`
}

// QualityAuditReport is the validator's verdict for a batch
type QualityAuditReport struct {
	ID              int            `json:"id,omitempty"`
	BatchID         string         `json:"batch_id"`
	RealDataRatio   float64        `json:"real_data_ratio"`
	TotalDataPoints int            `json:"total_data_points"`
	RealDataPoints  int            `json:"real_data_points"`
	Issues          []QualityIssue `json:"issues"`
	Recommendation  string         `json:"recommendation"`
	AuditedAt       time.Time      `json:"audited_at"`
}

// Publishable reports whether the batch may be served downstream
func (r *QualityAuditReport) Publishable() bool {
	return r.Recommendation == QualityCache || r.Recommendation == QualityWarn
}

// HasIssue reports whether a gate with the given name flagged the batch
func (r *QualityAuditReport) HasIssue(gate string) bool {
	for _, i := range r.Issues {
		if i.Gate == gate {
			return true
		}
	}
	return false
}
