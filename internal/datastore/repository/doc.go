// Package repository provides GORM-backed access to inspection records,
// ledger cache entries and lots.
//
// Every repository is an interface with an unexported implementation built
// by a New*Repository constructor. Implementations map gorm.ErrRecordNotFound
// to the sentinels in errors.go so callers never depend on GORM errors.
package repository
