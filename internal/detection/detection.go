// Package detection defines the per-region results produced by the external
// detector and their canonical serialisation.
package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rxledger/rxledger/internal/errors"
)

// Result is the combined authenticity verdict for one region.
type Result string

const (
	ResultGenuine     Result = "GENUINE"
	ResultSuspicious  Result = "SUSPICIOUS"
	ResultCounterfeit Result = "COUNTERFEIT"
)

// ParseResult accepts the three verdicts case-insensitively.
func ParseResult(s string) (Result, error) {
	switch r := Result(strings.ToUpper(strings.TrimSpace(s))); r {
	case ResultGenuine, ResultSuspicious, ResultCounterfeit:
		return r, nil
	default:
		return "", errors.Newf("unknown detection result %q", s).
			Component("detection").
			Category(errors.CategoryValidation).
			Build()
	}
}

// UnmarshalJSON validates the verdict.
func (r *Result) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseResult(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// BBox is a pixel rectangle, encoded as [x1, y1, x2, y2].
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// MarshalJSON implements json.Marshaler.
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("bbox: %w", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("bbox: want 4 coordinates, got %d", len(arr))
	}
	*b = BBox{X1: arr[0], Y1: arr[1], X2: arr[2], Y2: arr[3]}
	return nil
}

// Normalized returns the box with corners ordered so X1<=X2 and Y1<=Y2.
func (b BBox) Normalized() BBox {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// Detection is one region reported by the detector.
type Detection struct {
	BBox             BBox    `json:"bbox"`
	Stage1Label      string  `json:"stage1_label"`
	Stage1Confidence float64 `json:"stage1_confidence"`
	Stage2Label      string  `json:"stage2_label,omitempty"`
	Stage2Confidence float64 `json:"stage2_confidence,omitempty"`
	Combined         Result  `json:"combined_result"`
}

// Confidence is the score reported for the region's verdict: the second
// stage's when it ran, otherwise the first stage's.
func (d Detection) Confidence() float64 {
	if d.Stage2Label != "" {
		return d.Stage2Confidence
	}
	return d.Stage1Confidence
}

// Encode serialises detections in the canonical form written to the ledger.
// A nil slice encodes as "[]".
func Encode(ds []Detection) (string, error) {
	if ds == nil {
		ds = []Detection{}
	}
	data, err := json.Marshal(ds)
	if err != nil {
		return "", fmt.Errorf("encode detections: %w", err)
	}
	return string(data), nil
}

// Decode parses a serialised detection list.
func Decode(s string) ([]Detection, error) {
	var ds []Detection
	if err := json.Unmarshal([]byte(s), &ds); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}
	return ds, nil
}

// Detector turns image bytes into per-region detections.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Detection, error)
}
