package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/chain"
	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/metrics"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// TxSource is the public RPC the deployer polls for receipts. It is
// deliberately separate from the wallet provider.
type TxSource interface {
	chain.ReceiptGetter
	GetTransactionByHash(ctx context.Context, hash string) (*chain.Transaction, error)
}

// DeployRequest is one deployment to run.
type DeployRequest struct {
	Template Template
	Input    string
	From     string
}

// DeployResult is what a confirmed deployment produced.
type DeployResult struct {
	Contract records.DeployedContract
	TxHash   string
	Receipt  *chain.Receipt
	Gas      uint64
}

// Deployer runs encode → estimate → submit → poll → decode against a
// factory contract.
type Deployer struct {
	provider wallet.Provider
	source   TxSource
	factory  common.Address

	interval    time.Duration
	maxAttempts int
	txURL       func(hash string) string
	onSubmit    func(hash string)
	onPoll      func(attempt int, state chain.PollState)
	now         func() time.Time
	log         logrus.FieldLogger
}

// DeployerOption configures a Deployer.
type DeployerOption func(*Deployer)

// WithPolling overrides the receipt poll interval and attempt budget.
func WithPolling(interval time.Duration, maxAttempts int) DeployerOption {
	return func(d *Deployer) {
		d.interval = interval
		d.maxAttempts = maxAttempts
	}
}

// WithExplorer sets how transaction links are built for failure messages.
func WithExplorer(txURL func(hash string) string) DeployerOption {
	return func(d *Deployer) { d.txURL = txURL }
}

// WithSubmitHook is called once the wallet has returned a transaction hash.
func WithSubmitHook(fn func(hash string)) DeployerOption {
	return func(d *Deployer) { d.onSubmit = fn }
}

// WithPollHook is called after every receipt poll.
func WithPollHook(fn func(attempt int, state chain.PollState)) DeployerOption {
	return func(d *Deployer) { d.onPoll = fn }
}

// WithClock replaces time.Now for deployment timestamps.
func WithClock(now func() time.Time) DeployerOption {
	return func(d *Deployer) { d.now = now }
}

// WithLogger sets the deployer's logger.
func WithLogger(log logrus.FieldLogger) DeployerOption {
	return func(d *Deployer) { d.log = log }
}

// NewDeployer creates a Deployer that sends through provider to factory and
// polls source for receipts.
func NewDeployer(provider wallet.Provider, source TxSource, factory string, opts ...DeployerOption) (*Deployer, error) {
	if factory == "" {
		return nil, ErrNoFactory
	}
	if !common.IsHexAddress(factory) {
		return nil, fmt.Errorf("invalid factory address %q", factory)
	}
	d := &Deployer{
		provider:    provider,
		source:      source,
		factory:     common.HexToAddress(factory),
		interval:    config.ReceiptPollInterval,
		maxAttempts: config.ReceiptPollMaxAttempts,
		now:         time.Now,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.interval <= 0 {
		return nil, fmt.Errorf("%w: %s", chain.ErrBadInterval, d.interval)
	}
	return d, nil
}

// Factory returns the factory address deployments are sent to.
func (d *Deployer) Factory() common.Address { return d.factory }

// Deploy runs one deployment. Validation errors return before any network
// call. The steps are strictly sequential.
func (d *Deployer) Deploy(ctx context.Context, req DeployRequest) (res *DeployResult, err error) {
	t := req.Template
	log := d.log.WithFields(logrus.Fields{"template": t.ID, "wallet": strings.ToLower(req.From)})
	defer func() {
		metrics.Deployments.WithLabelValues(t.ID, deployOutcome(err)).Inc()
	}()

	bytecode, err := DeploymentBytecode(t, req.Input)
	if err != nil {
		return nil, err
	}
	calldata, err := FactoryCalldata(bytecode)
	if err != nil {
		return nil, fmt.Errorf("encoding factory call: %w", err)
	}
	data := hexutil.Encode(calldata)

	gas := d.estimate(ctx, req.From, data, log)

	hash, err := d.submit(ctx, wallet.TxRequest{
		From:  req.From,
		To:    d.factory.Hex(),
		Data:  data,
		Gas:   hexutil.EncodeUint64(gas),
		Value: "0x0",
	})
	if err != nil {
		return nil, err
	}
	log = log.WithField("tx_hash", hash)
	log.Info("deployment submitted")
	if d.onSubmit != nil {
		d.onSubmit(hash)
	}

	poller := chain.NewPoller(d.source, d.interval, d.maxAttempts)
	poller.OnAttempt = func(attempt int, state chain.PollState, perr error) {
		metrics.ReceiptPollAttempts.WithLabelValues(state.String()).Inc()
		if perr != nil {
			log.WithField("attempt", attempt).WithError(perr).Debug("receipt poll failed")
		}
		if d.onPoll != nil {
			d.onPoll(attempt, state)
		}
	}
	receipt, err := poller.Wait(ctx, hash)
	if err != nil {
		var failed *chain.TxFailedError
		if errors.As(err, &failed) && d.txURL != nil {
			failed.URL = d.txURL(hash)
		}
		log.WithError(err).Warn("deployment did not confirm")
		return nil, err
	}

	addr, ok := DeployedAddress(receipt.Logs)
	if !ok {
		to := receipt.To
		if tx, terr := d.source.GetTransactionByHash(ctx, hash); terr == nil && tx != nil && tx.To != "" {
			to = tx.To
		}
		return nil, &EventNotFoundError{TxHash: hash, To: to}
	}

	dc := records.DeployedContract{
		Address:      strings.ToLower(addr.Hex()),
		ContractType: t.ID,
		ContractName: t.Name,
		TxHash:       hash,
		Timestamp:    d.now().UnixMilli(),
	}
	if t.HasInput() {
		dc.InputValue = req.Input
	}
	if spent := receipt.GasSpent(); spent != nil {
		dc.GasSpent = spent.String()
	}
	log.WithField("address", dc.Address).Info("deployment confirmed")

	return &DeployResult{Contract: dc, TxHash: hash, Receipt: receipt, Gas: gas}, nil
}

// estimate asks the wallet for a gas estimate and adds the safety margin.
// Any failure falls back to the fixed deployment limit.
func (d *Deployer) estimate(ctx context.Context, from, data string, log logrus.FieldLogger) uint64 {
	raw, err := d.provider.Request(ctx, "eth_estimateGas", wallet.TxRequest{From: from, To: d.factory.Hex(), Data: data})
	if err != nil {
		log.WithError(err).Debug("gas estimation failed, using fallback limit")
		return config.GasLimitFactoryDeploy
	}
	var hexGas string
	if err := json.Unmarshal(raw, &hexGas); err != nil {
		return config.GasLimitFactoryDeploy
	}
	est, err := hexutil.DecodeUint64(hexGas)
	if err != nil || est == 0 {
		return config.GasLimitFactoryDeploy
	}
	return WithMargin(est)
}

// WithMargin adds config.GasMarginPercent to an estimate.
func WithMargin(gas uint64) uint64 {
	return gas + gas*config.GasMarginPercent/100
}

func (d *Deployer) submit(ctx context.Context, tx wallet.TxRequest) (string, error) {
	raw, err := d.provider.Request(ctx, "eth_sendTransaction", tx)
	if err != nil {
		if wallet.IsUserRejection(err) {
			return "", ErrUserRejected
		}
		return "", fmt.Errorf("submitting deployment: %w", err)
	}
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil || hash == "" {
		return "", fmt.Errorf("wallet returned no transaction hash")
	}
	return hash, nil
}

func deployOutcome(err error) string {
	var (
		failed  *chain.TxFailedError
		timeout *chain.ReceiptTimeoutError
		noEvent *EventNotFoundError
	)
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrUserRejected):
		return "rejected"
	case errors.As(err, &failed):
		return "reverted"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &noEvent):
		return "event_missing"
	}
	return metrics.ResultError
}
