package entities

import "time"

// CacheEntry mirrors the identifying part of a ledger record so repeat
// submissions can skip the contract call. The ledger wins on any conflict.
type CacheEntry struct {
	Fingerprint string    `gorm:"primaryKey;type:char(64)" json:"fingerprint"`
	LedgerIndex uint64    `gorm:"not null" json:"ledger_index"`
	TxHash      string    `gorm:"type:varchar(66)" json:"tx_hash,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	ObservedAt  time.Time `gorm:"not null;index" json:"observed_at"`
}

// TableName returns the table name for GORM.
func (CacheEntry) TableName() string {
	return "ledger_cache_entries"
}
