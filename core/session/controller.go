package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-co-op/gocron/v2"
	"github.com/oklog/ulid/v2"

	"github.com/AvaProtocol/ap-bundler/core/encoder"
	"github.com/AvaProtocol/ap-bundler/core/estimator"
	"github.com/AvaProtocol/ap-bundler/core/relay"
	"github.com/AvaProtocol/ap-bundler/metrics"
	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/pkg/logger"
	"github.com/AvaProtocol/ap-bundler/storage"
)

type Config struct {
	RebuildInterval time.Duration
	// AutoRefund makes the account pay the relay back out of the bundle.
	AutoRefund bool
}

type Deps struct {
	Settings  SettingsSource
	Builder   BundleBuilder
	Estimator FeeEstimator
	Encoder   TxEncoder
	Relay     Relayer
	Accounts  AccountState
	// History keeps submission records. Optional.
	History storage.Storage
	Metrics metrics.MetricsGenerator
	Logger  sdklogging.Logger
}

// Controller runs the state machine of one bundling session. Rebuilds and
// submissions may be triggered from any goroutine; at most one submission is
// in flight and a rebuild never overwrites a bundle that is being submitted.
type Controller struct {
	id      string
	config  Config
	account *model.DelegatedAccount

	settings  SettingsSource
	builder   BundleBuilder
	estimator FeeEstimator
	encoder   TxEncoder
	relay     Relayer
	accounts  AccountState
	history   storage.Storage
	metrics   metrics.MetricsGenerator
	logger    sdklogging.Logger

	mu         sync.Mutex
	state      State
	inputs     *Inputs
	prepared   *Prepared
	lastErr    error
	lastTaskID string
	lastTxHash common.Hash
	updatedAt  time.Time
	// generation invalidates rebuilds that were started before the latest
	// Prepare or Submit.
	generation   uint64
	observers    map[int]func(Status)
	nextObserver int
	closed       bool

	scheduler gocron.Scheduler
	job       gocron.Job

	ctx    context.Context
	cancel context.CancelFunc
}

func New(config Config, account *model.DelegatedAccount, deps Deps) (*Controller, error) {
	if account == nil {
		return nil, errors.New("delegated account is required")
	}
	if deps.Settings == nil || deps.Builder == nil || deps.Estimator == nil || deps.Encoder == nil || deps.Relay == nil || deps.Accounts == nil {
		return nil, errors.New("session dependencies are incomplete")
	}
	if config.RebuildInterval <= 0 {
		config.RebuildInterval = DefaultRebuildInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := ulid.Make().String()

	return &Controller{
		id:        id,
		config:    config,
		account:   account,
		settings:  deps.Settings,
		builder:   deps.Builder,
		estimator: deps.Estimator,
		encoder:   deps.Encoder,
		relay:     deps.Relay,
		accounts:  deps.Accounts,
		history:   deps.History,
		metrics:   metrics.EnsureMetrics(deps.Metrics),
		logger:    logger.EnsureLogger(deps.Logger).With("session", id, "account", account.Address.Hex()),
		state:     Idle,
		updatedAt: time.Now(),
		observers: make(map[int]func(Status)),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) Account() model.DelegatedAccount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.account
}

// Start arms the periodic rebuild.
func (c *Controller) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create rebuild scheduler: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = scheduler.Shutdown()
		return ErrClosed
	}
	c.scheduler = scheduler
	c.mu.Unlock()

	scheduler.Start()
	return c.armRebuild(false)
}

// Close stops the rebuild job and cancels an in-flight submission poll.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	scheduler := c.scheduler
	c.scheduler, c.job = nil, nil
	c.mu.Unlock()

	c.cancel()
	if scheduler != nil {
		return scheduler.Shutdown()
	}
	return nil
}

func (c *Controller) armRebuild(runNow bool) error {
	c.mu.Lock()
	scheduler, job := c.scheduler, c.job
	hasInputs := c.inputs != nil
	c.mu.Unlock()

	if scheduler == nil {
		return nil
	}
	if job == nil {
		var err error
		job, err = scheduler.NewJob(
			gocron.DurationJob(c.config.RebuildInterval),
			gocron.NewTask(c.rebuild),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithName("rebuild:"+c.id),
		)
		if err != nil {
			return fmt.Errorf("schedule rebuild: %w", err)
		}

		c.mu.Lock()
		if c.closed || c.job != nil {
			// lost a race with Close or another arm
			c.mu.Unlock()
			_ = scheduler.RemoveJob(job.ID())
			return nil
		}
		c.job = job
		c.mu.Unlock()
	}

	if runNow && hasInputs {
		return job.RunNow()
	}
	return nil
}

func (c *Controller) disarmRebuild() {
	c.mu.Lock()
	scheduler, job := c.scheduler, c.job
	c.job = nil
	c.mu.Unlock()

	if scheduler == nil || job == nil {
		return
	}
	if err := scheduler.RemoveJob(job.ID()); err != nil {
		c.logger.Warn("cannot remove rebuild job", "error", err)
	}
}

func (c *Controller) rebuild() {
	c.mu.Lock()
	if c.closed || c.state == Submitting || c.inputs == nil {
		c.mu.Unlock()
		return
	}
	inputs := c.inputs.Clone()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, c.config.RebuildInterval)
	defer cancel()

	if _, err := c.Prepare(ctx, inputs); err != nil && !errors.Is(err, ErrSubmissionInFlight) {
		c.logger.Warn("rebuild failed", "error", err)
	}
}

// SetInputs replaces the inputs and triggers a rebuild in the background.
func (c *Controller) SetInputs(inputs Inputs) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	in := inputs.Clone()
	c.inputs = &in
	c.mu.Unlock()

	return c.armRebuild(true)
}

// Prepare builds the bundle for inputs and estimates its fee. The result is
// nil when there is nothing to submit on chain or the inputs are not
// resolved yet.
func (c *Controller) Prepare(ctx context.Context, inputs Inputs) (*Prepared, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state == Submitting {
		c.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	in := inputs.Clone()
	c.inputs = &in
	c.generation++
	gen := c.generation
	account := *c.account
	c.setStateLocked(Preparing)
	c.mu.Unlock()
	c.notify()

	settings := c.settings.Snapshot()
	prepared, err := c.prepare(ctx, in, settings, &account)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.metrics.IncRebuild("superseded")
		c.logger.Debug("discarding superseded rebuild", "generation", gen)
		return nil, nil
	}
	if account.Deployed {
		c.account.MarkDeployed()
	}
	switch {
	case err != nil:
		c.prepared = nil
		c.lastErr = err
		c.setStateLocked(Idle)
		c.metrics.IncRebuild("error")
	case prepared == nil:
		c.prepared = nil
		c.lastErr = nil
		c.setStateLocked(Idle)
		c.metrics.IncRebuild("empty")
	default:
		c.prepared = prepared
		c.lastErr = nil
		c.setStateLocked(Ready)
		c.metrics.IncRebuild("ready")
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		return nil, err
	}
	return prepared, nil
}

func (c *Controller) prepare(ctx context.Context, in Inputs, settings model.BundleSettings, account *model.DelegatedAccount) (*Prepared, error) {
	if !in.Resolved() || in.OffchainOnly() {
		return nil, nil
	}

	if !account.Deployed {
		deployed, err := c.accounts.IsDeployed(ctx, account.Address)
		if err != nil {
			return nil, fmt.Errorf("check account deployment: %w", err)
		}
		if deployed {
			account.MarkDeployed()
		}
	}

	balance, err := c.accounts.NativeBalance(ctx, account.Address)
	if err != nil {
		return nil, fmt.Errorf("read account balance: %w", err)
	}

	bundle, err := c.builder.Build(in.buildInput(settings, balance))
	if err != nil {
		return nil, err
	}
	if len(bundle) == 0 {
		return nil, nil
	}

	est, err := c.estimator.Estimate(ctx, bundle, account)
	if err != nil {
		return nil, err
	}

	gasToken, est, err := c.selectGasToken(ctx, settings, est, account.Address)
	if err != nil {
		return nil, err
	}

	return &Prepared{Bundle: bundle, FeeEstimate: est, GasToken: gasToken, Settings: settings}, nil
}

// selectGasToken picks the asset paying the relay and prices est in it.
func (c *Controller) selectGasToken(ctx context.Context, settings model.BundleSettings, est *model.FeeEstimate, account common.Address) (common.Address, *model.FeeEstimate, error) {
	feeBalance := est.FeeAmount
	if settings.Sponsored && settings.Policy() == model.WrapNone {
		var err error
		if feeBalance, err = c.accounts.FeeTokenBalance(ctx, account); err != nil {
			return common.Address{}, nil, fmt.Errorf("read fee token balance: %w", err)
		}
	}

	token := estimator.SelectGasToken(settings, feeBalance, est.FeeAmount).Address(c.estimator.FeeToken())
	priced, err := c.estimator.Requote(ctx, est, token)
	if err != nil {
		return common.Address{}, nil, err
	}
	return token, priced, nil
}

// Submit executes the bundle for inputs through the relay. It prepares first
// when the current bundle was built for other inputs. A call made while
// another submission is in flight returns ErrSubmissionInFlight and does
// nothing else.
func (c *Controller) Submit(ctx context.Context, inputs Inputs, onReceipt ReceiptFunc, onOffchain OffchainFunc) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Submitting {
		c.mu.Unlock()
		return ErrSubmissionInFlight
	}
	ready := c.readyForLocked(inputs)
	c.mu.Unlock()

	if !inputs.Resolved() {
		return ErrNotReady
	}
	if !inputs.OffchainOnly() && !ready {
		if _, err := c.Prepare(ctx, inputs); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.state == Submitting {
		c.mu.Unlock()
		return ErrSubmissionInFlight
	}
	var prepared *Prepared
	if !inputs.OffchainOnly() {
		if !c.readyForLocked(inputs) {
			c.mu.Unlock()
			return ErrNotReady
		}
		prepared = &Prepared{
			Bundle:      c.prepared.Bundle.Clone(),
			FeeEstimate: cloneEstimate(c.prepared.FeeEstimate),
			GasToken:    c.prepared.GasToken,
			Settings:    c.prepared.Settings.Clone(),
		}
	}
	c.generation++
	c.lastErr = nil
	c.lastTaskID, c.lastTxHash = "", common.Hash{}
	c.setStateLocked(Submitting)
	c.mu.Unlock()
	c.notify()
	c.disarmRebuild()

	ctx, cancel := mergeCancel(ctx, c.ctx)
	defer cancel()

	record := newSubmissionRecord(c.id, c.account.Address, prepared)
	started := time.Now()

	var (
		receipt *types.Receipt
		err     error
	)
	if prepared == nil {
		if onOffchain != nil {
			err = onOffchain(ctx)
		}
	} else {
		receipt, err = c.submit(ctx, prepared, record)
	}
	if err == nil && receipt != nil && onReceipt != nil {
		onReceipt(receipt)
	}

	c.metrics.ObserveSubmissionLatency(time.Since(started))
	c.finish(prepared, record, receipt, err)
	return err
}

func (c *Controller) readyForLocked(inputs Inputs) bool {
	return c.state == Ready &&
		c.inputs != nil && c.inputs.Equal(inputs) &&
		c.prepared != nil &&
		c.prepared.FeeEstimate.Matches(model.HashBundle(c.prepared.Bundle))
}

func (c *Controller) submit(ctx context.Context, prepared *Prepared, record *SubmissionRecord) (*types.Receipt, error) {
	account := c.Account()
	chainID := c.encoder.ChainID()
	est := prepared.FeeEstimate

	if !account.Deployed {
		deployed, err := c.accounts.IsDeployed(ctx, account.Address)
		if err != nil {
			return nil, fmt.Errorf("check account deployment: %w", err)
		}
		if deployed {
			c.markDeployed()
			account.Deployed = true
		}
	}

	if !account.Deployed {
		if len(prepared.Bundle) < 2 {
			return nil, ErrAccountNotDeployed
		}
		if err := c.deploy(ctx, &account, prepared.Settings.Sponsored, record); err != nil {
			return nil, err
		}
	}

	// an estimate made while the account was undeployed is zero. Redo it now
	// that the account can be simulated and keep it on prepared, a retry
	// after a relay failure reuses it.
	if est.IsZero() {
		fresh, err := c.estimator.Estimate(ctx, prepared.Bundle, &account)
		if err != nil {
			return nil, err
		}
		token, priced, err := c.selectGasToken(ctx, prepared.Settings, fresh, account.Address)
		if err != nil {
			return nil, err
		}
		prepared.FeeEstimate, prepared.GasToken = priced, token
		est = priced
	}

	call, err := c.encoder.ExecutionCall(prepared.Bundle)
	if err != nil {
		return nil, err
	}
	payload, err := c.encoder.EncodeExecute(ctx, call, encoder.ExecuteOptions{
		Account:    account.Address,
		GasLimit:   est.GasUsed,
		AutoRefund: c.config.AutoRefund,
		FeeToken:   est.FeeToken,
		Sponsored:  prepared.Settings.Sponsored,
	})
	if err != nil {
		return nil, err
	}

	feeToken := est.FeeToken
	taskID, err := c.relay.Submit(ctx, chainID, account.Address, payload, &relay.Options{
		GasLimit:  est.GasUsed,
		FeeToken:  &feeToken,
		Sponsored: prepared.Settings.Sponsored,
	})
	if err != nil {
		return nil, err
	}
	c.recordTask(record, taskID)
	c.logger.Info("bundle submitted", "taskId", taskID, "calls", prepared.Bundle.Labels(), "fee", est.FeeAmount.String(), "feeToken", feeToken.Hex())

	receipt, err := c.relay.PollUntilTerminal(ctx, taskID)
	if receipt != nil {
		c.recordTxHash(record, receipt.TxHash)
	}
	return receipt, err
}

// deploy creates the delegated account through the relay and waits for it.
func (c *Controller) deploy(ctx context.Context, account *model.DelegatedAccount, sponsored bool, record *SubmissionRecord) error {
	call, err := c.encoder.EncodeDeployment(account)
	if err != nil {
		return fmt.Errorf("encode deployment: %w", err)
	}

	taskID, err := c.relay.Submit(ctx, c.encoder.ChainID(), call.To, call.Data, &relay.Options{Sponsored: sponsored})
	if err != nil {
		return err
	}
	c.recordTask(record, taskID)
	c.logger.Info("deploying delegated account", "taskId", taskID)

	if _, err := c.relay.PollUntilTerminal(ctx, taskID); err != nil {
		return err
	}

	c.markDeployed()
	account.MarkDeployed()
	return nil
}

func (c *Controller) markDeployed() {
	c.mu.Lock()
	c.account.MarkDeployed()
	c.mu.Unlock()
}

func (c *Controller) recordTask(record *SubmissionRecord, taskID string) {
	record.TaskIDs = append(record.TaskIDs, taskID)
	c.mu.Lock()
	c.lastTaskID = taskID
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) recordTxHash(record *SubmissionRecord, hash common.Hash) {
	record.TxHash = hash
	c.mu.Lock()
	c.lastTxHash = hash
	c.mu.Unlock()
}

// finish applies the outcome of a submission. Rejected signatures and relay
// failures keep the bundle so the user can retry it, anything else drops it
// and the periodic rebuild starts over.
func (c *Controller) finish(prepared *Prepared, record *SubmissionRecord, receipt *types.Receipt, err error) {
	var (
		rejected *model.SigningRejected
		relayErr *model.RelayError
	)
	outcome := "succeeded"
	retryable := false
	switch {
	case err == nil:
	case errors.As(err, &rejected):
		outcome, retryable = "rejected", true
	case errors.As(err, &relayErr):
		outcome, retryable = "relay_failed", true
	default:
		outcome = "failed"
	}
	c.metrics.IncSubmission(outcome)
	c.saveRecord(record, outcome, err)

	if err != nil {
		c.logger.Warn("submission failed", "outcome", outcome, "error", err)
	} else if receipt != nil {
		c.logger.Info("submission succeeded", "txHash", receipt.TxHash.Hex(), "block", receipt.BlockNumber)
	}

	c.mu.Lock()
	c.lastErr = err
	switch {
	case retryable && prepared != nil:
		c.prepared = prepared
		c.setStateLocked(Ready)
	case err == nil:
		c.setStateLocked(Succeeded)
	default:
		c.setStateLocked(Failed)
	}
	c.mu.Unlock()
	c.notify()

	if retryable && prepared != nil {
		c.logArm(c.armRebuild(false))
		return
	}

	c.mu.Lock()
	c.prepared = nil
	c.setStateLocked(Idle)
	c.mu.Unlock()
	c.notify()
	c.logArm(c.armRebuild(true))
}

func (c *Controller) logArm(err error) {
	if err != nil {
		c.logger.Error("cannot re-arm rebuild", "error", err)
	}
}

// Status is a snapshot of the session for display.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	st := Status{
		SessionID:    c.id,
		Account:      c.account.Address,
		Deployed:     c.account.Deployed,
		State:        c.state,
		IsPreparing:  c.state == Preparing,
		IsSubmitting: c.state == Submitting,
		LastError:    model.SanitizeError(c.lastErr),
		LastTaskID:   c.lastTaskID,
		LastTxHash:   c.lastTxHash,
		UpdatedAt:    c.updatedAt,
	}
	if c.prepared != nil {
		st.Bundle = c.prepared.Bundle.Clone()
		st.FeeEstimate = cloneEstimate(c.prepared.FeeEstimate)
		st.GasToken = c.prepared.GasToken
	}
	st.CanSubmit = c.inputs != nil && c.readyForLocked(*c.inputs)
	return st
}

func (c *Controller) setStateLocked(s State) {
	if c.state != s {
		c.logger.Debug("session state", "from", c.state, "to", s)
	}
	c.state = s
	c.updatedAt = time.Now()
}

// Subscribe registers fn to receive every status change. Observers run on
// the goroutine that changed the state and must not block.
func (c *Controller) Subscribe(fn func(Status)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	st := c.statusLocked()
	observers := make([]func(Status), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(st)
	}
}

// mergeCancel returns a context done when either parent is.
func mergeCancel(ctx, session context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(session, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
