// Package bundler decides which calls a user action needs and in which order:
// wrap, approve, flow allowance grant, the business call and an optional
// refund.
package bundler

import (
	"math/big"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-bundler/core/chainio/safe"
	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/pkg/logger"
)

// CallFactory populates the token calls of a bundle. Implemented by
// safe.TokenCalls.
type CallFactory interface {
	Wrap(amount *big.Int) (model.Call, error)
	Approve(spender common.Address, amount *big.Int) (model.Call, error)
	GrantFlowAllowance(operator common.Address, flowRateAllowance *big.Int, permissions uint8) (model.Call, error)
	Refund(receiver common.Address, amount *big.Int) (model.Call, error)
}

var _ CallFactory = (*safe.TokenCalls)(nil)

type BuildInput struct {
	RequiredPayment    *big.Int
	RequiredFlowAmount *big.Int
	Spender            common.Address
	FlowOperator       common.Address
	// BusinessCall is the encoded call to Spender. Empty means the action
	// has no on-chain effect.
	BusinessCall []byte
	Settings     model.BundleSettings
	// AccountBalance is the native balance of the delegated account.
	AccountBalance *big.Int

	RefundReceiver common.Address
	RefundAmount   *big.Int
}

type Builder struct {
	calls  CallFactory
	logger sdklogging.Logger
}

func NewBuilder(calls CallFactory, log sdklogging.Logger) *Builder {
	return &Builder{calls: calls, logger: logger.EnsureLogger(log)}
}

// Build returns the ordered bundle for in, or nil when there is no business
// call. A token call that cannot be populated fails the whole attempt with a
// *model.BuildError.
func (b *Builder) Build(in BuildInput) (model.Bundle, error) {
	if len(in.BusinessCall) == 0 {
		return nil, nil
	}

	requiredPayment := orZero(in.RequiredPayment)
	bundle := model.Bundle{}

	if amount := WrapAmount(in.Settings, requiredPayment, in.AccountBalance); amount.Sign() > 0 {
		call, err := populated(model.LabelWrap)(b.calls.Wrap(amount))
		if err != nil {
			return nil, err
		}
		bundle = append(bundle, call)
	}

	if requiredPayment.Sign() > 0 {
		call, err := populated(model.LabelApprove)(b.calls.Approve(in.Spender, requiredPayment))
		if err != nil {
			return nil, err
		}
		bundle = append(bundle, call)
	}

	grant, err := populated(model.LabelFlowAllowance)(
		b.calls.GrantFlowAllowance(in.FlowOperator, orZero(in.RequiredFlowAmount), safe.FlowPermissionCreateOrUpdate),
	)
	if err != nil {
		return nil, err
	}
	bundle = append(bundle, grant)

	bundle = append(bundle, model.NewCall(in.Spender, nil, in.BusinessCall, model.OperationCall, model.LabelBusiness))

	if in.RefundAmount != nil && in.RefundAmount.Sign() > 0 {
		refund, err := populated(model.LabelRefund)(b.calls.Refund(in.RefundReceiver, in.RefundAmount))
		if err != nil {
			return nil, err
		}
		bundle = append(bundle, refund)
	}

	b.logger.Debug("bundle built", "calls", bundle.Labels(), "policy", in.Settings.Policy().String())
	return bundle, nil
}

// populated checks a factory result for a target and calldata.
func populated(label model.CallLabel) func(model.Call, error) (model.Call, error) {
	return func(call model.Call, err error) (model.Call, error) {
		if err != nil {
			return model.Call{}, &model.BuildError{Call: label, Reason: "call factory failed", Err: err}
		}
		if !call.Populated() {
			return model.Call{}, &model.BuildError{Call: label, Reason: "call has no target or data"}
		}
		return call, nil
	}
}

// WrapAmount is how much native asset the bundle converts into the fee
// asset before anything else runs.
func WrapAmount(settings model.BundleSettings, requiredPayment, balance *big.Int) *big.Int {
	requiredPayment = orZero(requiredPayment)
	balance = orZero(balance)
	fixed := settings.WrapAmountOrZero()

	switch {
	case !settings.Sponsored || settings.NoWrap:
		return new(big.Int)

	case settings.WrapAll || fixed.Cmp(balance) > 0:
		// wrapping a fixed amount would overdraw, wrap what is there
		if balance.Sign() > 0 {
			return new(big.Int).Set(balance)
		}
		return new(big.Int)

	case fixed.Sign() > 0 && balance.Sign() > 0:
		return new(big.Int).Add(fixed, requiredPayment)

	default:
		return new(big.Int)
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
