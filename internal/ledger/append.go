package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/fingerprint"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
)

// Append records detections for fp and blocks until the transaction is mined.
//
// Each successful call spends gas and one nonce; callers must have checked
// with Lookup that fp is not yet recorded. On ErrTimeout the transaction may
// still be mined later.
func (c *Client) Append(ctx context.Context, fp fingerprint.Fingerprint, detections []detection.Detection) (*Record, error) {
	start := time.Now()

	rec, err := c.append(ctx, fp, detections)
	elapsed := time.Since(start)
	c.metrics.RecordDuration(metrics.OpAppend, elapsed.Seconds())
	if err != nil {
		c.metrics.RecordOperation(metrics.OpAppend, metrics.StatusError)
		c.metrics.RecordError(metrics.OpAppend, appendErrorType(err))
		c.log.Warn("ledger append failed",
			logger.String("fingerprint", fp.Short()),
			logger.Duration("duration", elapsed),
			logger.Error(err))
		return nil, err
	}

	c.metrics.RecordOperation(metrics.OpAppend, metrics.StatusSuccess)
	c.log.Info("verification recorded on ledger",
		logger.String("fingerprint", fp.Short()),
		logger.Uint64("index", rec.Index),
		logger.String("tx_hash", rec.TxHash),
		logger.Uint64("block", rec.BlockNumber),
		logger.Duration("duration", elapsed))
	return rec, nil
}

func (c *Client) append(ctx context.Context, fp fingerprint.Fingerprint, detections []detection.Detection) (*Record, error) {
	if !c.IsConnected(ctx) {
		return nil, errors.New(fmt.Errorf("%w: node not reachable", ErrUnavailable)).
			Component("ledger").
			Category(errors.CategoryLedger).
			Context("operation", metrics.OpAppend).
			Build()
	}

	payload, err := detection.Encode(detections)
	if err != nil {
		return nil, err
	}

	// best effort; the authoritative index comes from the lookup after mining
	predicted, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit := c.gasLimit(len(fp.String()) + len(payload))
	c.metrics.SetGasLimit(gasLimit)

	tx, err := c.send(ctx, fp, payload, gasLimit)
	if err != nil {
		return nil, err
	}

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: tx %s: %w", ErrTimeout, tx.Hash().Hex(), err)).
			Component("ledger").
			Category(errors.CategoryTimeout).
			Context("fingerprint", fp.String()).
			Context("tx_hash", tx.Hash().Hex()).
			Context("mining_timeout", c.miningTimeout().String()).
			Build()
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return nil, errors.New(fmt.Errorf("%w: tx %s reverted", ErrRejected, tx.Hash().Hex())).
			Component("ledger").
			Category(errors.CategoryLedgerRejected).
			Context("fingerprint", fp.String()).
			Context("tx_hash", tx.Hash().Hex()).
			Context("block", receipt.BlockNumber.Uint64()).
			Build()
	}

	rec := &Record{
		Index:         predicted,
		Fingerprint:   fp,
		Detections:    detections,
		RawDetections: payload,
		Timestamp:     time.Now().UTC(),
		Submitter:     c.from,
	}
	if stored, found, err := c.Lookup(ctx, fp); err == nil && found {
		rec = stored
	} else {
		c.log.Warn("could not read back appended record, using predicted index",
			logger.String("fingerprint", fp.Short()),
			logger.Uint64("predicted_index", predicted),
			logger.Bool("found", found),
			logger.Error(err))
	}
	rec.TxHash = tx.Hash().Hex()
	if receipt.BlockNumber != nil {
		rec.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return rec, nil
}

// send assigns the next nonce, signs and submits the transaction. Any send
// failure drops the local counter so the next call re-reads it from the node.
func (c *Client) send(ctx context.Context, fp fingerprint.Fingerprint, payload string, gasLimit uint64) (*types.Transaction, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, callTimeout(c.cfg))
	defer cancel()

	if !c.nonceValid {
		nonce, err := c.backend.PendingNonceAt(callCtx, c.from)
		if err != nil {
			return nil, unavailable("pending_nonce", err).Build()
		}
		c.nextNonce = nonce
		c.nonceValid = true
	}

	gasPrice, err := c.backend.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, unavailable("gas_price", err).Build()
	}

	opts := &bind.TransactOpts{
		From:     c.from,
		Signer:   c.signer,
		Nonce:    new(big.Int).SetUint64(c.nextNonce),
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Context:  callCtx,
	}

	tx, err := c.contract.RecordVerification(opts, fp.String(), payload)
	if err != nil {
		c.nonceValid = false
		return nil, classifySendError(fp, c.nextNonce, err)
	}
	c.nextNonce++

	c.log.Debug("verification transaction sent",
		logger.String("fingerprint", fp.Short()),
		logger.String("tx_hash", tx.Hash().Hex()),
		logger.Uint64("nonce", tx.Nonce()),
		logger.Uint64("gas_limit", gasLimit),
		logger.String("gas_price", gasPrice.String()))
	return tx, nil
}

// waitMined polls for the receipt every PollInterval until MiningTimeout.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.miningTimeout())
	defer cancel()

	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = conf.DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			c.log.Debug("receipt poll failed", logger.String("tx_hash", hash.Hex()), logger.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// gasLimit is base + perByte*n, clamped to the configured maximum.
func (c *Client) gasLimit(payloadBytes int) uint64 {
	limit := c.cfg.GasLimitBase + c.cfg.GasPerByte*uint64(payloadBytes)
	if c.cfg.GasLimitMax > 0 && limit > c.cfg.GasLimitMax {
		return c.cfg.GasLimitMax
	}
	return limit
}

func (c *Client) miningTimeout() time.Duration {
	if c.cfg.MiningTimeout > 0 {
		return c.cfg.MiningTimeout
	}
	return conf.DefaultMiningTimeout
}

// classifySendError separates contract reverts surfaced at submission from
// node or transport failures.
func classifySendError(fp fingerprint.Fingerprint, nonce uint64, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "revert") {
		return errors.New(fmt.Errorf("%w: %w", ErrRejected, err)).
			Component("ledger").
			Category(errors.CategoryLedgerRejected).
			Context("fingerprint", fp.String()).
			Build()
	}
	return errors.New(fmt.Errorf("%w: send: %w", ErrUnavailable, err)).
		Component("ledger").
		Category(errors.CategoryLedger).
		Context("fingerprint", fp.String()).
		Context("nonce", nonce).
		Build()
}

func appendErrorType(err error) string {
	switch {
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}

func bigFromInt64(v int64) *big.Int {
	return new(big.Int).SetInt64(v)
}
