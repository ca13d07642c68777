// Package entities defines the GORM models of the local store.
//
//   - InspectionRecord: one reviewable row per detected region of a submission
//   - CacheEntry: local mirror of a ledger record, keyed by fingerprint
//   - Lot: supply-chain batch that inspections may be linked to
//
// Lots and inspections are related by an optional lot id only; deleting a
// lot is an administrative action outside this package.
package entities

// All returns every model for AutoMigrate.
func All() []any {
	return []any{&Lot{}, &InspectionRecord{}, &CacheEntry{}}
}
