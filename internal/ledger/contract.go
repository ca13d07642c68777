package ledger

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:embed abi/MedicineVerification.json
var contractABIJSON []byte

const (
	methodRecord   = "recordVerification"
	methodCount    = "getVerificationCount"
	methodGet      = "getVerification"
	methodFindHash = "findByHash"
)

// ParseABI parses the embedded contract ABI.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(contractABIJSON))
}

// boundContract adapts bind.BoundContract to Contract.
type boundContract struct {
	bc *bind.BoundContract
}

// NewContract binds the verification contract at address over backend.
func NewContract(address common.Address, backend bind.ContractBackend) (Contract, error) {
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	return &boundContract{bc: bind.NewBoundContract(address, parsed, backend, backend, backend)}, nil
}

func (c *boundContract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	if err := c.bc.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *boundContract) FindByHash(ctx context.Context, imageHash string) (bool, uint64, error) {
	out, err := c.call(ctx, methodFindHash, imageHash)
	if err != nil {
		return false, 0, err
	}
	if len(out) != 2 {
		return false, 0, fmt.Errorf("%s: want 2 outputs, got %d", methodFindHash, len(out))
	}
	found, ok := out[0].(bool)
	if !ok {
		return false, 0, fmt.Errorf("%s: unexpected type %T", methodFindHash, out[0])
	}
	index, err := toUint64(out[1])
	if err != nil {
		return false, 0, fmt.Errorf("%s: %w", methodFindHash, err)
	}
	return found, index, nil
}

func (c *boundContract) Count(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, methodCount)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%s: want 1 output, got %d", methodCount, len(out))
	}
	return toUint64(out[0])
}

func (c *boundContract) Get(ctx context.Context, index uint64) (RawRecord, error) {
	out, err := c.call(ctx, methodGet, new(big.Int).SetUint64(index))
	if err != nil {
		return RawRecord{}, err
	}
	if len(out) != 4 {
		return RawRecord{}, fmt.Errorf("%s: want 4 outputs, got %d", methodGet, len(out))
	}

	var rec RawRecord
	var ok bool
	if rec.ImageHash, ok = out[0].(string); !ok {
		return RawRecord{}, fmt.Errorf("%s: unexpected hash type %T", methodGet, out[0])
	}
	if rec.Detections, ok = out[1].(string); !ok {
		return RawRecord{}, fmt.Errorf("%s: unexpected detections type %T", methodGet, out[1])
	}
	if rec.Timestamp, ok = out[2].(*big.Int); !ok {
		return RawRecord{}, fmt.Errorf("%s: unexpected timestamp type %T", methodGet, out[2])
	}
	if rec.Recorder, ok = out[3].(common.Address); !ok {
		return RawRecord{}, fmt.Errorf("%s: unexpected recorder type %T", methodGet, out[3])
	}
	return rec, nil
}

func (c *boundContract) RecordVerification(opts *bind.TransactOpts, imageHash, detections string) (*types.Transaction, error) {
	return c.bc.Transact(opts, methodRecord, imageHash, detections)
}

func toUint64(v any) (uint64, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected integer type %T", v)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("integer %s overflows uint64", n)
	}
	return n.Uint64(), nil
}
