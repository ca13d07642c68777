// Package ledger is the client for the append-only verification contract.
//
// A Client is constructed once per process with Open and torn down with
// Close. It owns the node connection, the signing key and the nonce counter
// of the signing account; concurrent Append calls share that counter and are
// serialised while a transaction is signed and sent.
package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/fingerprint"
)

// Sentinel errors. Errors returned by Client wrap one of these.
var (
	ErrUnavailable = errors.NewStd("ledger unavailable")
	ErrRejected    = errors.NewStd("ledger rejected transaction")
	ErrTimeout     = errors.NewStd("ledger mining timeout")
	ErrNotFound    = errors.NewStd("ledger record not found")
)

// Record is one on-chain verification entry.
type Record struct {
	Index         uint64                  `json:"index"`
	Fingerprint   fingerprint.Fingerprint `json:"fingerprint"`
	Detections    []detection.Detection   `json:"detections,omitempty"`
	RawDetections string                  `json:"-"`
	Timestamp     time.Time               `json:"timestamp,omitzero"`
	Submitter     common.Address          `json:"submitter,omitzero"`

	// Partial marks a record rebuilt from the fingerprint cache, which holds
	// no detections, timestamp or submitter.
	Partial bool `json:"partial,omitempty"`

	// Only known for records written by this process or read back from the cache
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// RawRecord is a getVerification result before decoding.
type RawRecord struct {
	ImageHash  string
	Detections string
	Timestamp  *big.Int
	Recorder   common.Address
}

// Backend is the part of ethclient.Client used by the ledger.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Contract is the verification contract surface.
type Contract interface {
	FindByHash(ctx context.Context, imageHash string) (found bool, index uint64, err error)
	Count(ctx context.Context) (uint64, error)
	Get(ctx context.Context, index uint64) (RawRecord, error)
	RecordVerification(opts *bind.TransactOpts, imageHash, detections string) (*types.Transaction, error)
}
