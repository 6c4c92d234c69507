package bundler

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-bundler/core/chainio/safe"
	"github.com/AvaProtocol/ap-bundler/core/testutil"
	"github.com/AvaProtocol/ap-bundler/model"
)

func settingsWith(sponsored, wrapAll, noWrap bool, wrapAmount int64) model.BundleSettings {
	s := model.DefaultBundleSettings()
	s.Sponsored = sponsored
	s.WrapAll = wrapAll
	s.NoWrap = noWrap
	s.WrapAmount = big.NewInt(wrapAmount)
	return s
}

func TestWrapAmount(t *testing.T) {
	cases := []struct {
		name     string
		settings model.BundleSettings
		payment  int64
		balance  int64
		want     int64
	}{
		{"not sponsored", settingsWith(false, true, false, 0), 5, 100, 0},
		{"noWrap", settingsWith(true, false, true, 10), 5, 100, 0},
		{"noWrap beats wrapAll", settingsWith(true, true, true, 0), 5, 100, 0},
		{"wrapAll takes the balance", settingsWith(true, true, false, 0), 5, 100, 100},
		{"wrapAll empty account", settingsWith(true, true, false, 0), 5, 0, 0},
		{"fixed amount plus payment", settingsWith(true, false, false, 10), 5, 100, 15},
		{"fixed amount equal to balance", settingsWith(true, false, false, 100), 5, 100, 105},
		{"fixed amount overdraws", settingsWith(true, false, false, 150), 5, 100, 100},
		{"fixed amount overdraws empty account", settingsWith(true, false, false, 150), 5, 0, 0},
		{"nothing configured", settingsWith(true, false, false, 0), 5, 100, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WrapAmount(tc.settings, big.NewInt(tc.payment), big.NewInt(tc.balance))
			assert.Equal(t, tc.want, got.Int64())
		})
	}

	assert.Equal(t, 0, WrapAmount(settingsWith(true, true, false, 0), nil, nil).Sign())
}

func newTestBuilder() *Builder {
	return NewBuilder(safe.NewTokenCalls(testutil.FeeToken, testutil.FlowForwarder), nil)
}

func baseInput() BuildInput {
	return BuildInput{
		RequiredPayment:    big.NewInt(50),
		RequiredFlowAmount: big.NewInt(1_000),
		Spender:            testutil.Spender,
		FlowOperator:       testutil.FlowOperator,
		BusinessCall:       []byte{0xde, 0xad, 0xbe, 0xef},
		Settings:           settingsWith(true, true, false, 0),
		AccountBalance:     big.NewInt(700),
	}
}

func TestBuildWithoutBusinessCall(t *testing.T) {
	b := newTestBuilder()
	for _, business := range [][]byte{nil, {}} {
		in := baseInput()
		in.BusinessCall = business
		bundle, err := b.Build(in)
		require.NoError(t, err)
		assert.Nil(t, bundle)
	}
}

func TestBuildFullBundle(t *testing.T) {
	bundle, err := newTestBuilder().Build(baseInput())
	require.NoError(t, err)

	assert.Equal(t, []model.CallLabel{
		model.LabelWrap, model.LabelApprove, model.LabelFlowAllowance, model.LabelBusiness,
	}, bundle.Labels())

	assert.Equal(t, int64(700), bundle[0].Value.Int64(), "wrapAll wraps the whole balance")

	business := bundle[3]
	assert.Equal(t, testutil.Spender, business.To)
	assert.Equal(t, 0, business.Value.Sign())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, business.Data)
}

func TestBuildFixedWrap(t *testing.T) {
	in := baseInput()
	in.Settings = settingsWith(true, false, false, 200)

	bundle, err := newTestBuilder().Build(in)
	require.NoError(t, err)
	require.Equal(t, model.LabelWrap, bundle[0].Label)
	assert.Equal(t, int64(250), bundle[0].Value.Int64())
}

func TestBuildSkipsApproveWithoutPayment(t *testing.T) {
	in := baseInput()
	in.RequiredPayment = big.NewInt(0)
	in.Settings = settingsWith(true, false, true, 0)

	bundle, err := newTestBuilder().Build(in)
	require.NoError(t, err)
	assert.Equal(t, []model.CallLabel{model.LabelFlowAllowance, model.LabelBusiness}, bundle.Labels())
}

func TestBuildWithRefund(t *testing.T) {
	in := baseInput()
	in.RefundReceiver = testutil.SponsorCollector
	in.RefundAmount = big.NewInt(12)

	bundle, err := newTestBuilder().Build(in)
	require.NoError(t, err)
	assert.Equal(t, len(bundle)-1, bundle.Index(model.LabelRefund))
	assert.Less(t, bundle.Index(model.LabelBusiness), bundle.Index(model.LabelRefund))
}

// Every combination of flags, balances and payments keeps the call order and
// never wraps when noWrap is set.
func TestBuildOrderingAcrossInputs(t *testing.T) {
	b := newTestBuilder()
	bools := []bool{false, true}
	amounts := []int64{0, 1, 100, 10_000}

	for _, sponsored := range bools {
		for _, wrapAll := range bools {
			for _, noWrap := range bools {
				for _, fixed := range amounts {
					for _, balance := range amounts {
						for _, payment := range amounts {
							in := baseInput()
							in.Settings = settingsWith(sponsored, wrapAll, noWrap, fixed)
							in.AccountBalance = big.NewInt(balance)
							in.RequiredPayment = big.NewInt(payment)

							bundle, err := b.Build(in)
							require.NoError(t, err)
							assertOrdered(t, bundle)

							if noWrap {
								assert.Equal(t, -1, bundle.Index(model.LabelWrap))
							}
							if sponsored && wrapAll && !noWrap && balance > 0 {
								require.Equal(t, 0, bundle.Index(model.LabelWrap))
								assert.Equal(t, balance, bundle[0].Value.Int64())
							}
							if sponsored && !wrapAll && !noWrap && fixed > 0 && balance > 0 && fixed <= balance {
								require.Equal(t, 0, bundle.Index(model.LabelWrap))
								assert.Equal(t, fixed+payment, bundle[0].Value.Int64())
							}
						}
					}
				}
			}
		}
	}
}

func assertOrdered(t *testing.T, bundle model.Bundle) {
	t.Helper()
	order := map[model.CallLabel]int{
		model.LabelWrap:          0,
		model.LabelApprove:       1,
		model.LabelFlowAllowance: 2,
		model.LabelBusiness:      3,
		model.LabelRefund:        4,
	}
	last := -1
	for _, call := range bundle {
		rank := order[call.Label]
		assert.Greater(t, rank, last, "call %s out of order in %v", call.Label, bundle.Labels())
		last = rank
	}
	assert.NotEqual(t, -1, bundle.Index(model.LabelFlowAllowance))
	assert.Equal(t, len(bundle)-1, bundle.Index(model.LabelBusiness))
}

type brokenFactory struct {
	CallFactory
	grant model.Call
	err   error
}

func (f brokenFactory) GrantFlowAllowance(common.Address, *big.Int, uint8) (model.Call, error) {
	return f.grant, f.err
}

func TestBuildErrorOnUnpopulatedGrant(t *testing.T) {
	tokens := safe.NewTokenCalls(testutil.FeeToken, testutil.FlowForwarder)

	cases := []struct {
		name    string
		factory brokenFactory
	}{
		{"no target", brokenFactory{CallFactory: tokens, grant: model.NewCall(common.Address{}, nil, []byte{0x01}, model.OperationCall, model.LabelFlowAllowance)}},
		{"no data", brokenFactory{CallFactory: tokens, grant: model.NewCall(testutil.FlowForwarder, nil, nil, model.OperationCall, model.LabelFlowAllowance)}},
		{"factory error", brokenFactory{CallFactory: tokens, err: errors.New("forwarder unavailable")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bundle, err := NewBuilder(tc.factory, nil).Build(baseInput())
			assert.Nil(t, bundle)
			var buildErr *model.BuildError
			require.ErrorAs(t, err, &buildErr)
			assert.Equal(t, model.LabelFlowAllowance, buildErr.Call)
		})
	}
}

func TestBuildErrorOnFlowAllowanceOverflow(t *testing.T) {
	in := baseInput()
	in.RequiredFlowAmount = new(big.Int).Lsh(big.NewInt(1), 100)

	_, err := newTestBuilder().Build(in)
	var buildErr *model.BuildError
	require.ErrorAs(t, err, &buildErr)
}
