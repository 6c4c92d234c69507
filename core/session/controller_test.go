package session

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AvaProtocol/ap-bundler/core/bundler"
	"github.com/AvaProtocol/ap-bundler/core/chainio"
	"github.com/AvaProtocol/ap-bundler/core/chainio/safe"
	"github.com/AvaProtocol/ap-bundler/core/encoder"
	"github.com/AvaProtocol/ap-bundler/core/relay"
	"github.com/AvaProtocol/ap-bundler/core/testutil"
	"github.com/AvaProtocol/ap-bundler/model"
)

type fakeSettings struct {
	mu sync.Mutex
	s  model.BundleSettings
}

func (f *fakeSettings) Snapshot() model.BundleSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s.Clone()
}

type fakeEstimator struct {
	mu       sync.Mutex
	calls    int
	deployed []bool
	err      error
}

func (f *fakeEstimator) FeeToken() common.Address { return testutil.FeeToken }

func (f *fakeEstimator) Estimate(ctx context.Context, bundle model.Bundle, account *model.DelegatedAccount) (*model.FeeEstimate, error) {
	f.mu.Lock()
	f.calls++
	f.deployed = append(f.deployed, account.Deployed)
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	hash := model.HashBundle(bundle)
	if !account.Deployed {
		return model.ZeroEstimate(testutil.FeeToken, hash), nil
	}
	return &model.FeeEstimate{
		GasUsed:    big.NewInt(100_000),
		FeeAmount:  big.NewInt(500),
		FeeToken:   testutil.FeeToken,
		BundleHash: hash,
	}, nil
}

// Requote prices the native token at twice the fee asset.
func (f *fakeEstimator) Requote(ctx context.Context, est *model.FeeEstimate, token common.Address) (*model.FeeEstimate, error) {
	if est.FeeToken == token {
		return est, nil
	}
	out := *est
	out.FeeToken = token
	if !est.IsZero() {
		out.FeeAmount = new(big.Int).Mul(est.FeeAmount, big.NewInt(2))
	}
	return &out, nil
}

func (f *fakeEstimator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEncoder struct {
	mu      sync.Mutex
	signErr error
	opts    []encoder.ExecuteOptions
}

func (f *fakeEncoder) ChainID() *big.Int { return testutil.ChainID }

func (f *fakeEncoder) EncodeDeployment(account *model.DelegatedAccount) (model.Call, error) {
	return model.NewCall(testutil.ProxyFactory, nil, []byte{0x16, 0x88}, model.OperationCall, model.LabelDeploy), nil
}

func (f *fakeEncoder) ExecutionCall(bundle model.Bundle) (model.Call, error) {
	return model.NewCall(testutil.MultiSend, nil, encoder.EncodeMultiSend(bundle), model.OperationDelegateCall, model.LabelMultiSend), nil
}

func (f *fakeEncoder) EncodeExecute(ctx context.Context, call model.Call, opts encoder.ExecuteOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signErr != nil {
		return nil, &model.SigningRejected{Err: f.signErr}
	}
	f.opts = append(f.opts, opts)
	return append([]byte{0x6a, 0x76, 0x12, 0x02}, call.Data...), nil
}

type submission struct {
	target  common.Address
	payload []byte
	opts    *relay.Options
}

type fakeRelay struct {
	mu          sync.Mutex
	submissions []submission
	submitErr   error
	// poll answers PollUntilTerminal, defaults to a successful receipt.
	poll func(ctx context.Context, taskID string) (*types.Receipt, error)
}

func (f *fakeRelay) Submit(ctx context.Context, chainID *big.Int, target common.Address, payload []byte, opts *relay.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submissions = append(f.submissions, submission{target: target, payload: payload, opts: opts})
	return "task-" + string(rune('0'+len(f.submissions))), nil
}

func (f *fakeRelay) PollUntilTerminal(ctx context.Context, taskID string) (*types.Receipt, error) {
	f.mu.Lock()
	poll := f.poll
	f.mu.Unlock()
	if poll != nil {
		return poll(ctx, taskID)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0xbeef"), BlockNumber: big.NewInt(7)}, nil
}

func (f *fakeRelay) Submissions() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.submissions...)
}

type harness struct {
	controller *Controller
	chain      *testutil.FakeChain
	settings   *fakeSettings
	estimator  *fakeEstimator
	encoder    *fakeEncoder
	relay      *fakeRelay
}

func newHarness(t *testing.T, deployed bool, mutate func(*Config, *Deps)) *harness {
	t.Helper()

	chain := testutil.NewFakeChain()
	chain.SetBalance(testutil.Account, big.NewInt(1_000_000))
	if deployed {
		chain.SetCode(testutil.Account, []byte{0x60, 0x80})
	}

	h := &harness{
		chain:     chain,
		settings:  &fakeSettings{s: model.DefaultBundleSettings()},
		estimator: &fakeEstimator{},
		encoder:   &fakeEncoder{},
		relay:     &fakeRelay{},
	}

	config := Config{RebuildInterval: time.Hour}
	deps := Deps{
		Settings:  h.settings,
		Builder:   bundler.NewBuilder(safe.NewTokenCalls(testutil.FeeToken, testutil.FlowForwarder), nil),
		Estimator: h.estimator,
		Encoder:   h.encoder,
		Relay:     h.relay,
		Accounts:  chainio.NewAccountReader(chain, testutil.FeeToken),
	}
	if mutate != nil {
		mutate(&config, &deps)
	}

	c, err := New(config, model.NewDelegatedAccount(testutil.Account, testutil.Owner()), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	h.controller = c
	return h
}

func testInputs() Inputs {
	spender, operator := testutil.Spender, testutil.FlowOperator
	return Inputs{
		RequiredPayment:    big.NewInt(50),
		RequiredFlowAmount: big.NewInt(1_000),
		Spender:            &spender,
		FlowOperator:       &operator,
		BusinessCall:       []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

// recorder collects every state an observer sees.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) observe(st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.states); n == 0 || r.states[n-1] != st.State {
		r.states = append(r.states, st.State)
	}
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestPrepareReady(t *testing.T) {
	h := newHarness(t, true, nil)

	prepared, err := h.controller.Prepare(context.Background(), testInputs())
	require.NoError(t, err)
	require.NotNil(t, prepared)

	assert.Equal(t, []model.CallLabel{
		model.LabelWrap, model.LabelApprove, model.LabelFlowAllowance, model.LabelBusiness,
	}, prepared.Bundle.Labels())
	assert.True(t, prepared.FeeEstimate.Matches(model.HashBundle(prepared.Bundle)))
	assert.Equal(t, testutil.FeeToken, prepared.GasToken)

	st := h.controller.Status()
	assert.Equal(t, Ready, st.State)
	assert.True(t, st.CanSubmit)
	assert.True(t, st.Deployed)
	assert.Empty(t, st.LastError)
}

func TestPrepareUnresolvedInputs(t *testing.T) {
	h := newHarness(t, true, nil)

	in := testInputs()
	in.FlowOperator = nil
	prepared, err := h.controller.Prepare(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, prepared)

	st := h.controller.Status()
	assert.Equal(t, Idle, st.State)
	assert.False(t, st.CanSubmit)
	assert.Equal(t, 0, h.estimator.Calls())
}

func TestPrepareOffchainOnly(t *testing.T) {
	h := newHarness(t, true, nil)

	in := testInputs()
	in.BusinessCall = nil
	prepared, err := h.controller.Prepare(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, prepared)
	assert.Equal(t, Idle, h.controller.Status().State)
}

func TestPrepareBuildError(t *testing.T) {
	h := newHarness(t, true, nil)

	in := testInputs()
	in.RequiredFlowAmount = new(big.Int).Lsh(big.NewInt(1), 100)
	_, err := h.controller.Prepare(context.Background(), in)

	var buildErr *model.BuildError
	require.ErrorAs(t, err, &buildErr)
	st := h.controller.Status()
	assert.Equal(t, Idle, st.State)
	assert.NotEmpty(t, st.LastError)
	assert.False(t, st.CanSubmit)
}

func TestPrepareEstimationErrorDisablesSubmit(t *testing.T) {
	h := newHarness(t, true, nil)
	h.estimator.err = &model.EstimationError{Reason: "simulation reverted"}

	_, err := h.controller.Prepare(context.Background(), testInputs())
	var estErr *model.EstimationError
	require.ErrorAs(t, err, &estErr)
	assert.False(t, h.controller.Status().CanSubmit)

	h.estimator.mu.Lock()
	h.estimator.err = nil
	h.estimator.mu.Unlock()

	_, err = h.controller.Prepare(context.Background(), testInputs())
	require.NoError(t, err)
	assert.True(t, h.controller.Status().CanSubmit)
}

func TestPrepareFallsBackToNativeGasToken(t *testing.T) {
	h := newHarness(t, true, nil)
	h.settings.s.NoWrap = true
	h.chain.CallHandler = func(msg ethereum.CallMsg) ([]byte, error) {
		// fee asset balance below the 500 fee
		return common.LeftPadBytes(big.NewInt(10).Bytes(), 32), nil
	}

	prepared, err := h.controller.Prepare(context.Background(), testInputs())
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, prepared.GasToken)
	assert.Equal(t, common.Address{}, prepared.FeeEstimate.FeeToken)
	assert.Equal(t, int64(1_000), prepared.FeeEstimate.FeeAmount.Int64())

	h.chain.CallHandler = func(msg ethereum.CallMsg) ([]byte, error) {
		return common.LeftPadBytes(big.NewInt(10_000).Bytes(), 32), nil
	}
	prepared, err = h.controller.Prepare(context.Background(), testInputs())
	require.NoError(t, err)
	assert.Equal(t, testutil.FeeToken, prepared.GasToken)
}

func TestSubmitSuccess(t *testing.T) {
	h := newHarness(t, true, nil)
	rec := &recorder{}
	h.controller.Subscribe(rec.observe)

	var got *types.Receipt
	err := h.controller.Submit(context.Background(), testInputs(), func(r *types.Receipt) { got = r }, nil)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, common.HexToHash("0xbeef"), got.TxHash)

	subs := h.relay.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, testutil.Account, subs[0].target)
	assert.Equal(t, testutil.FeeToken, *subs[0].opts.FeeToken)
	assert.True(t, subs[0].opts.Sponsored)

	st := h.controller.Status()
	assert.Equal(t, Idle, st.State)
	assert.Equal(t, "task-1", st.LastTaskID)
	assert.Equal(t, common.HexToHash("0xbeef"), st.LastTxHash)
	assert.Nil(t, st.Bundle, "a submitted bundle is not offered again")

	assert.Equal(t, []State{Preparing, Ready, Submitting, Succeeded, Idle}, rec.States())
}

func TestSubmitRelayRevertedStaysReady(t *testing.T) {
	h := newHarness(t, true, nil)
	h.relay.poll = func(ctx context.Context, taskID string) (*types.Receipt, error) {
		return nil, &model.RelayError{TaskID: taskID, State: model.TaskReverted, Message: "execution reverted: GS013"}
	}

	err := h.controller.Submit(context.Background(), testInputs(), func(*types.Receipt) {
		t.Error("no receipt for a reverted task")
	}, nil)

	var relayErr *model.RelayError
	require.ErrorAs(t, err, &relayErr)

	st := h.controller.Status()
	assert.Equal(t, Ready, st.State)
	assert.NotEqual(t, Succeeded, st.State)
	assert.Equal(t, "GS013", st.LastError)
	assert.True(t, st.CanSubmit, "the user can retry the same bundle")
	assert.NotNil(t, st.Bundle)
}

func TestSubmitSigningRejectedStaysReady(t *testing.T) {
	h := newHarness(t, true, nil)
	h.encoder.signErr = errors.New("user declined")

	err := h.controller.Submit(context.Background(), testInputs(), nil, nil)
	var rejected *model.SigningRejected
	require.ErrorAs(t, err, &rejected)

	assert.Empty(t, h.relay.Submissions())
	assert.Equal(t, Ready, h.controller.Status().State)
	assert.Equal(t, 1, h.estimator.Calls(), "no rebuild after a rejected signature")
}

func TestSubmitNetworkErrorFails(t *testing.T) {
	h := newHarness(t, true, nil)
	h.relay.submitErr = &model.NetworkError{Op: "submit", StatusCode: 502, Body: "bad gateway"}
	rec := &recorder{}
	h.controller.Subscribe(rec.observe)

	err := h.controller.Submit(context.Background(), testInputs(), nil, nil)
	var netErr *model.NetworkError
	require.ErrorAs(t, err, &netErr)

	states := rec.States()
	assert.Contains(t, states, Failed)
	assert.Equal(t, Idle, states[len(states)-1])

	st := h.controller.Status()
	assert.Equal(t, model.GenericSubmitError, st.LastError)
	assert.Empty(t, h.relay.Submissions(), "never retried")
}

func TestSubmitReentrantIsIgnored(t *testing.T) {
	h := newHarness(t, true, nil)

	release := make(chan struct{})
	h.relay.poll = func(ctx context.Context, taskID string) (*types.Receipt, error) {
		<-release
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0x01"), BlockNumber: big.NewInt(1)}, nil
	}

	submitting := make(chan struct{})
	var once sync.Once
	h.controller.Subscribe(func(st Status) {
		if st.State == Submitting {
			once.Do(func() { close(submitting) })
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- h.controller.Submit(context.Background(), testInputs(), nil, nil)
	}()
	<-submitting

	err := h.controller.Submit(context.Background(), testInputs(), nil, nil)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	_, err = h.controller.Prepare(context.Background(), testInputs())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	assert.Equal(t, Submitting, h.controller.Status().State)
	estimates := h.estimator.Calls()

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, h.relay.Submissions(), 1, "only one relay call")
	assert.Equal(t, estimates, h.estimator.Calls())
}

func TestSubmitDeploysAccountFirst(t *testing.T) {
	h := newHarness(t, false, nil)

	prepared, err := h.controller.Prepare(context.Background(), testInputs())
	require.NoError(t, err)
	assert.True(t, prepared.FeeEstimate.IsZero(), "undeployed accounts are not simulated")

	// the deployment lands on chain once the relay executes it
	h.relay.poll = func(ctx context.Context, taskID string) (*types.Receipt, error) {
		h.chain.SetCode(testutil.Account, []byte{0x60, 0x80})
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash(taskID), BlockNumber: big.NewInt(1)}, nil
	}

	require.NoError(t, h.controller.Submit(context.Background(), testInputs(), nil, nil))

	subs := h.relay.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, testutil.ProxyFactory, subs[0].target, "deployment goes first")
	assert.Equal(t, testutil.Account, subs[1].target)

	assert.True(t, h.controller.Account().Deployed)
	assert.True(t, h.controller.Status().Deployed)

	h.estimator.mu.Lock()
	deployed := append([]bool(nil), h.estimator.deployed...)
	h.estimator.mu.Unlock()
	assert.Equal(t, []bool{false, true}, deployed, "estimated again once deployed")

	h.encoder.mu.Lock()
	defer h.encoder.mu.Unlock()
	require.Len(t, h.encoder.opts, 1)
	assert.Equal(t, int64(100_000), h.encoder.opts[0].GasLimit.Int64())
}

func TestRetryAfterDeploymentKeepsFreshEstimate(t *testing.T) {
	h := newHarness(t, false, nil)

	prepared, err := h.controller.Prepare(context.Background(), testInputs())
	require.NoError(t, err)
	require.True(t, prepared.FeeEstimate.IsZero())

	var polls int
	h.relay.poll = func(ctx context.Context, taskID string) (*types.Receipt, error) {
		polls++
		switch polls {
		case 1:
			h.chain.SetCode(testutil.Account, []byte{0x60, 0x80})
		case 2:
			return nil, &model.RelayError{TaskID: taskID, State: model.TaskReverted, Message: "GS013"}
		}
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash(taskID), BlockNumber: big.NewInt(1)}, nil
	}

	err = h.controller.Submit(context.Background(), testInputs(), nil, nil)
	var relayErr *model.RelayError
	require.ErrorAs(t, err, &relayErr)

	st := h.controller.Status()
	assert.Equal(t, Ready, st.State)
	require.NotNil(t, st.FeeEstimate)
	assert.Equal(t, int64(100_000), st.FeeEstimate.GasUsed.Int64(), "the estimate made after deployment is kept")

	require.NoError(t, h.controller.Submit(context.Background(), testInputs(), nil, nil))

	subs := h.relay.Submissions()
	require.Len(t, subs, 3)
	assert.Equal(t, testutil.ProxyFactory, subs[0].target)
	for _, sub := range subs[1:] {
		assert.Equal(t, testutil.Account, sub.target)
		assert.Equal(t, int64(100_000), sub.opts.GasLimit.Int64())
	}

	h.encoder.mu.Lock()
	defer h.encoder.mu.Unlock()
	require.Len(t, h.encoder.opts, 2)
	for _, opts := range h.encoder.opts {
		assert.Equal(t, int64(100_000), opts.GasLimit.Int64())
	}
}

func TestSubmitSkipsDeploymentWhenAlreadyOnChain(t *testing.T) {
	h := newHarness(t, false, nil)
	_, err := h.controller.Prepare(context.Background(), testInputs())
	require.NoError(t, err)

	h.chain.SetCode(testutil.Account, []byte{0x60, 0x80})
	require.NoError(t, h.controller.Submit(context.Background(), testInputs(), nil, nil))

	subs := h.relay.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, testutil.Account, subs[0].target)
	assert.Equal(t, int64(100_000), subs[0].opts.GasLimit.Int64(), "the zero estimate is redone")
}

func TestSubmitOffchainOnly(t *testing.T) {
	h := newHarness(t, true, nil)

	in := testInputs()
	in.BusinessCall = nil
	called := false
	err := h.controller.Submit(context.Background(), in, nil, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	assert.True(t, called)
	assert.Empty(t, h.relay.Submissions())
	assert.Equal(t, 0, h.estimator.Calls())
	assert.Equal(t, Idle, h.controller.Status().State)
}

func TestSubmitUnresolvedInputs(t *testing.T) {
	h := newHarness(t, true, nil)

	in := testInputs()
	in.RequiredPayment = nil
	err := h.controller.Submit(context.Background(), in, nil, nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, h.relay.Submissions())
}

func TestSubmitRebuildsForNewInputs(t *testing.T) {
	h := newHarness(t, true, nil)

	_, err := h.controller.Prepare(context.Background(), testInputs())
	require.NoError(t, err)

	in := testInputs()
	in.RequiredPayment = big.NewInt(0)
	require.NoError(t, h.controller.Submit(context.Background(), in, nil, nil))

	assert.Equal(t, 2, h.estimator.Calls())

	// the submitted bundle has no approve call
	subs := h.relay.Submissions()
	require.Len(t, subs, 1)
	approve := safe.NewTokenCalls(testutil.FeeToken, testutil.FlowForwarder)
	call, err := approve.Approve(testutil.Spender, big.NewInt(50))
	require.NoError(t, err)
	assert.NotContains(t, string(subs[0].payload), string(call.Data))
}

func TestCloseCancelsSubmission(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, true, nil)
	polling := make(chan struct{})
	h.relay.poll = func(ctx context.Context, taskID string) (*types.Receipt, error) {
		close(polling)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		done <- h.controller.Submit(context.Background(), testInputs(), nil, nil)
	}()
	<-polling

	require.NoError(t, h.controller.Close())
	assert.ErrorIs(t, <-done, context.Canceled)

	_, err := h.controller.Prepare(context.Background(), testInputs())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPeriodicRebuild(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, true, func(c *Config, _ *Deps) {
		c.RebuildInterval = 20 * time.Millisecond
	})
	require.NoError(t, h.controller.Start())
	require.NoError(t, h.controller.SetInputs(testInputs()))

	require.Eventually(t, func() bool {
		return h.controller.Status().State == Ready
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return h.estimator.Calls() >= 3
	}, 2*time.Second, 5*time.Millisecond, "keeps rebuilding while not submitting")

	require.NoError(t, h.controller.Close())
}

func TestSubmissionPausesRebuild(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, true, func(c *Config, _ *Deps) {
		c.RebuildInterval = 10 * time.Millisecond
	})
	require.NoError(t, h.controller.Start())

	release := make(chan struct{})
	polling := make(chan struct{})
	h.relay.poll = func(ctx context.Context, taskID string) (*types.Receipt, error) {
		close(polling)
		<-release
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0x02"), BlockNumber: big.NewInt(1)}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- h.controller.Submit(context.Background(), testInputs(), nil, nil)
	}()
	<-polling

	before := h.estimator.Calls()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, h.estimator.Calls(), "no rebuild while submitting")

	close(release)
	require.NoError(t, <-done)

	require.Eventually(t, func() bool {
		return h.estimator.Calls() > before
	}, 2*time.Second, 5*time.Millisecond, "rebuild resumes after the submission")

	require.NoError(t, h.controller.Close())
}

func TestSubmissionHistory(t *testing.T) {
	db := testutil.TestMustDB(t)
	h := newHarness(t, true, func(_ *Config, d *Deps) {
		d.History = db
	})

	require.NoError(t, h.controller.Submit(context.Background(), testInputs(), nil, nil))

	h.relay.poll = func(ctx context.Context, taskID string) (*types.Receipt, error) {
		return nil, &model.RelayError{TaskID: taskID, State: model.TaskCancelled, Message: "blacklisted sender"}
	}
	require.Error(t, h.controller.Submit(context.Background(), testInputs(), nil, nil))

	records, err := ListSubmissions(db, testutil.Account, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "relay_failed", records[0].Outcome)
	assert.Equal(t, "blacklisted sender", records[0].Error)
	assert.Equal(t, []string{"task-2"}, records[0].TaskIDs)

	assert.Equal(t, "succeeded", records[1].Outcome)
	assert.Equal(t, common.HexToHash("0xbeef"), records[1].TxHash)
	assert.Equal(t, model.LabelBusiness, records[1].Calls[len(records[1].Calls)-1])
	assert.Equal(t, h.controller.ID(), records[1].SessionID)

	count, err := SubmissionCount(db, testutil.Account)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	limited, err := ListSubmissions(db, testutil.Account, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	other, err := ListSubmissions(db, testutil.Spender, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}
