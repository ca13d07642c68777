package entities

import (
	"time"

	"github.com/rxledger/rxledger/internal/detection"
)

// InspectionRecord is the local review row for one detected region.
// Status and LotID are the only fields changed after creation.
type InspectionRecord struct {
	ID          string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Fingerprint string           `gorm:"type:char(64);not null;index:idx_inspection_fp_pos,priority:1" json:"fingerprint"`
	Position    int              `gorm:"not null;index:idx_inspection_fp_pos,priority:2" json:"position"` // region index within the submission
	Result      detection.Result `gorm:"type:varchar(16);not null" json:"result"`
	Confidence  float64          `gorm:"not null" json:"confidence"`
	BBox        detection.BBox   `gorm:"serializer:json;type:varchar(128);not null" json:"bbox"`
	CropRef     *string          `gorm:"size:512" json:"crop_ref,omitempty"`
	SubmittedBy *string          `gorm:"size:255;index" json:"submitted_by,omitempty"`
	LotID       *string          `gorm:"type:varchar(36);index" json:"lot_id,omitempty"`
	Status      ReviewStatus     `gorm:"type:varchar(16);not null;default:PENDING;index" json:"status"`
	CreatedAt   time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (InspectionRecord) TableName() string {
	return "inspection_records"
}
