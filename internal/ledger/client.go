package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/fingerprint"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
	"github.com/rxledger/rxledger/internal/secrets"
)

// listConcurrency bounds parallel getVerification calls in ListAll.
const listConcurrency = 8

// Client talks to the verification contract through one node connection.
type Client struct {
	backend  Backend
	contract Contract
	cfg      conf.LedgerSettings
	log      logger.Logger
	metrics  metrics.LedgerRecorder

	from   common.Address
	signer bind.SignerFn

	// nonceMu serialises nonce assignment and transaction submission
	nonceMu    sync.Mutex
	nextNonce  uint64
	nonceValid bool

	closeOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithRecorder installs a metrics recorder.
func WithRecorder(r metrics.LedgerRecorder) Option {
	return func(c *Client) { c.metrics = metrics.OrNoOpLedger(r) }
}

// Open dials the node, loads the signing key, resolves the chain id and
// binds the contract.
func Open(ctx context.Context, cfg conf.LedgerSettings, log logger.Logger, opts ...Option) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, configError("ledger.contract_address is not a valid address")
	}
	hexKey, err := secrets.MustResolve("ledger.private_key", cfg.PrivateKeyFile, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, callTimeout(cfg))
	defer cancel()

	eth, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, unavailable("dial", err).Context("rpc_url", cfg.RPCURL).Build()
	}

	contract, err := NewContract(common.HexToAddress(cfg.ContractAddress), eth)
	if err != nil {
		eth.Close()
		return nil, err
	}

	c, err := New(ctx, eth, contract, key, cfg, log, opts...)
	if err != nil {
		eth.Close()
		return nil, err
	}
	return c, nil
}

// New builds a Client over an existing backend and contract binding.
// A zero cfg.ChainID is resolved from the backend.
func New(ctx context.Context, backend Backend, contract Contract, key *ecdsa.PrivateKey, cfg conf.LedgerSettings, log logger.Logger, opts ...Option) (*Client, error) {
	if key == nil {
		return nil, configError("ledger signing key is required")
	}

	chainID := bigFromInt64(cfg.ChainID)
	if cfg.ChainID == 0 {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout(cfg))
		id, err := backend.ChainID(callCtx)
		cancel()
		if err != nil {
			return nil, unavailable("chain_id", err).Build()
		}
		chainID = id
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, configError(fmt.Sprintf("create transactor: %v", err))
	}

	c := &Client{
		backend:  backend,
		contract: contract,
		cfg:      cfg,
		log:      log.Module("ledger"),
		metrics:  metrics.NewNoOpRecorder(),
		from:     auth.From,
		signer:   auth.Signer,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.log.Info("ledger client ready",
		logger.String("account", c.from.Hex()),
		logger.String("chain_id", chainID.String()),
		logger.Uint64("gas_limit_base", cfg.GasLimitBase),
		logger.Uint64("gas_limit_max", cfg.GasLimitMax))

	return c, nil
}

// ParsePrivateKey decodes a hex private key with or without 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, configError("ledger.private_key is required")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// the key itself must never reach the logs
		return nil, configError("ledger.private_key is not a valid secp256k1 key")
	}
	return key, nil
}

// Close releases the node connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.backend.Close()
		c.log.Info("ledger client closed")
	})
}

// Account returns the submitting address.
func (c *Client) Account() common.Address { return c.from }

// IsConnected reports whether the node answers a block number query.
func (c *Client) IsConnected(ctx context.Context) bool {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, callTimeout(c.cfg))
	defer cancel()

	_, err := c.backend.BlockNumber(ctx)
	c.observe(metrics.OpHealth, start, err)
	if err != nil {
		c.log.Debug("ledger node not reachable", logger.Error(err))
		return false
	}
	return true
}

// Lookup returns the record stored for fp, if any.
func (c *Client) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (*Record, bool, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, callTimeout(c.cfg))
	defer cancel()

	found, index, err := c.contract.FindByHash(ctx, fp.String())
	if err != nil {
		c.observe(metrics.OpLookup, start, err)
		return nil, false, unavailable(metrics.OpLookup, err).Context("fingerprint", fp.String()).Build()
	}
	if !found {
		c.metrics.RecordOperation(metrics.OpLookup, metrics.StatusMiss)
		c.metrics.RecordDuration(metrics.OpLookup, time.Since(start).Seconds())
		return nil, false, nil
	}

	raw, err := c.contract.Get(ctx, index)
	c.observe(metrics.OpLookup, start, err)
	if err != nil {
		return nil, false, unavailable(metrics.OpLookup, err).
			Context("fingerprint", fp.String()).
			Context("index", index).
			Build()
	}

	rec := c.decode(index, raw)
	return &rec, true, nil
}

// Count returns the number of records on chain.
func (c *Client) Count(ctx context.Context) (uint64, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, callTimeout(c.cfg))
	defer cancel()

	n, err := c.contract.Count(ctx)
	c.observe(metrics.OpCount, start, err)
	if err != nil {
		return 0, unavailable(metrics.OpCount, err).Build()
	}
	return n, nil
}

// GetByIndex returns the record at index i, or ErrNotFound when i is out of range.
func (c *Client) GetByIndex(ctx context.Context, i uint64) (*Record, error) {
	n, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if i >= n {
		c.metrics.RecordError(metrics.OpGetByIndex, "not_found")
		return nil, errors.New(fmt.Errorf("%w: index %d, count %d", ErrNotFound, i, n)).
			Component("ledger").
			Category(errors.CategoryNotFound).
			Context("index", i).
			Build()
	}

	rec, err := c.get(ctx, i)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAll returns every record in index order.
func (c *Client) ListAll(ctx context.Context) ([]Record, error) {
	start := time.Now()
	n, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]Record, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i := range n {
		g.Go(func() error {
			rec, err := c.get(gctx, i)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.metrics.RecordOperation(metrics.OpListAll, metrics.StatusError)
		return nil, err
	}

	c.metrics.RecordOperation(metrics.OpListAll, metrics.StatusSuccess)
	c.metrics.RecordDuration(metrics.OpListAll, time.Since(start).Seconds())
	return records, nil
}

func (c *Client) get(ctx context.Context, i uint64) (Record, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, callTimeout(c.cfg))
	defer cancel()

	raw, err := c.contract.Get(ctx, i)
	c.observe(metrics.OpGetByIndex, start, err)
	if err != nil {
		return Record{}, unavailable(metrics.OpGetByIndex, err).Context("index", i).Build()
	}
	return c.decode(i, raw), nil
}

// decode converts a contract tuple. Payloads that do not parse as detections
// are kept raw so foreign records can still be listed.
func (c *Client) decode(index uint64, raw RawRecord) Record {
	rec := Record{
		Index:         index,
		Fingerprint:   fingerprint.Fingerprint(raw.ImageHash),
		RawDetections: raw.Detections,
		Submitter:     raw.Recorder,
	}
	if raw.Timestamp != nil && raw.Timestamp.IsInt64() {
		rec.Timestamp = time.Unix(raw.Timestamp.Int64(), 0).UTC()
	}

	dets, err := detection.Decode(raw.Detections)
	if err != nil {
		c.log.Warn("ledger record has undecodable detections",
			logger.Uint64("index", index),
			logger.Error(err))
		return rec
	}
	rec.Detections = dets
	return rec
}

func (c *Client) observe(op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		c.metrics.RecordError(op, "unavailable")
	}
	c.metrics.RecordOperation(op, status)
	c.metrics.RecordDuration(op, time.Since(start).Seconds())
}

func callTimeout(cfg conf.LedgerSettings) time.Duration {
	if cfg.CallTimeout > 0 {
		return cfg.CallTimeout
	}
	return conf.DefaultCallTimeout
}

func unavailable(op string, err error) *errors.ErrorBuilder {
	return errors.New(fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)).
		Component("ledger").
		Category(errors.CategoryLedger).
		Context("operation", op)
}

func configError(msg string) error {
	return errors.New(errors.NewStd(msg)).
		Component("ledger").
		Category(errors.CategoryConfiguration).
		Build()
}
