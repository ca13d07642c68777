package ledger

import (
	"context"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
)

var contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// fakeChain plays both the node backend and the contract. Transactions are
// mined synchronously unless withholdReceipts is set.
type fakeChain struct {
	mu sync.Mutex

	chainID  *big.Int
	down     bool
	sendErr  error
	findErr  error
	pending  uint64
	gasPrice *big.Int

	withholdReceipts bool
	ignoreDuplicates bool // emulate a contract without the duplicate guard

	records    []RawRecord
	byHash     map[string]uint64
	receipts   map[common.Hash]*types.Receipt
	sentNonces []uint64
	sentTxs    []*types.Transaction
	gasLimits  []uint64
	nonceReads int
	block      uint64
	closed     bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		chainID:  big.NewInt(1337),
		gasPrice: big.NewInt(2_000_000_000),
		byHash:   make(map[string]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		block:    100,
	}
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return 0, errDial
	}
	return f.block, nil
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceReads++
	return f.pending, nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok && !f.withholdReceipts {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeChain) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeChain) FindByHash(_ context.Context, imageHash string) (bool, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return false, 0, f.findErr
	}
	i, ok := f.byHash[imageHash]
	return ok, i, nil
}

func (f *fakeChain) Count(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return 0, errDial
	}
	return uint64(len(f.records)), nil
}

func (f *fakeChain) Get(_ context.Context, index uint64) (RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= uint64(len(f.records)) {
		return RawRecord{}, errOutOfRange
	}
	return f.records[index], nil
}

func (f *fakeChain) RecordVerification(opts *bind.TransactOpts, imageHash, detections string) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return nil, f.sendErr
	}

	to := contractAddr
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    opts.Nonce.Uint64(),
		GasPrice: opts.GasPrice,
		Gas:      opts.GasLimit,
		To:       &to,
		Data:     []byte(imageHash),
	})
	signed, err := opts.Signer(opts.From, tx)
	if err != nil {
		return nil, err
	}

	f.sentNonces = append(f.sentNonces, opts.Nonce.Uint64())
	f.sentTxs = append(f.sentTxs, signed)
	f.gasLimits = append(f.gasLimits, opts.GasLimit)
	f.pending = opts.Nonce.Uint64() + 1
	f.block++

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      signed.Hash(),
		BlockNumber: new(big.Int).SetUint64(f.block),
	}
	if _, dup := f.byHash[imageHash]; dup && !f.ignoreDuplicates {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		f.byHash[imageHash] = uint64(len(f.records))
		f.records = append(f.records, RawRecord{
			ImageHash:  imageHash,
			Detections: detections,
			Timestamp:  big.NewInt(1_700_000_000 + int64(len(f.records))),
			Recorder:   opts.From,
		})
	}
	f.receipts[signed.Hash()] = receipt
	return signed, nil
}

func (f *fakeChain) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

var (
	errDial       = errors.NewStd("dial tcp 127.0.0.1:8545: connect: connection refused")
	errOutOfRange = errors.NewStd("execution reverted: out of range")
)

func testSettings() conf.LedgerSettings {
	return conf.LedgerSettings{
		ContractAddress: contractAddr.Hex(),
		GasLimitBase:    conf.DefaultGasLimitBase,
		GasPerByte:      conf.DefaultGasPerByte,
		GasLimitMax:     conf.DefaultGasLimitMax,
		MiningTimeout:   200 * time.Millisecond,
		PollInterval:    2 * time.Millisecond,
		CallTimeout:     time.Second,
	}
}

func newTestClient(t *testing.T, chain *fakeChain, cfg conf.LedgerSettings) (*Client, *metrics.TestRecorder) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	recorder := metrics.NewTestRecorder()
	c, err := New(t.Context(), chain, chain, key, cfg,
		logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC),
		WithRecorder(recorder))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, recorder
}
