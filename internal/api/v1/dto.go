package api

import (
	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/ledger"
	"github.com/rxledger/rxledger/internal/recording"
)

// OutcomeResponse renders a recording.Outcome.
type OutcomeResponse struct {
	Outcome      string                      `json:"outcome"`
	Fingerprint  string                      `json:"fingerprint,omitempty"`
	Record       *ledger.Record              `json:"record,omitempty"`
	FromCache    bool                        `json:"from_cache"`
	Detections   []detection.Detection       `json:"detections"`
	Inspections  []entities.InspectionRecord `json:"inspections,omitempty"`
	Reason       string                      `json:"reason,omitempty"`
	Inconsistent bool                        `json:"inconsistent,omitempty"`
}

// NewOutcomeResponse converts an outcome for JSON output.
func NewOutcomeResponse(o *recording.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		Outcome:      o.Kind.String(),
		Fingerprint:  string(o.Fingerprint),
		Record:       o.Record,
		FromCache:    o.FromCache,
		Detections:   o.Detections,
		Inspections:  o.Inspections,
		Inconsistent: o.Inconsistent(),
	}
	if resp.Detections == nil {
		resp.Detections = []detection.Detection{}
	}
	if o.Reason != nil {
		resp.Reason = o.Reason.Error()
	}
	return resp
}

// ListResponse wraps list payloads.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func newList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Total: len(items)}
}

// DecisionRequest is the body of POST /inspections/:id/decision.
type DecisionRequest struct {
	Action string `json:"action"`
}

// LinkRequest is the body of PUT /inspections/:id/lot.
type LinkRequest struct {
	LotID string `json:"lot_id"`
}

// LotRequest is the body of POST /lots.
type LotRequest struct {
	LotNumber   string `json:"lot_number"`
	ProductName string `json:"product_name"`
	ProductCode string `json:"product_code"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Ledger   string `json:"ledger"`
	Detector string `json:"detector"`
	Error    string `json:"error,omitempty"`
}
