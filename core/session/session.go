// Package session owns one bundling session: the periodic rebuild of the
// bundle and its fee estimate, the readiness gate, and the single in-flight
// submission through the relay.
package session

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/ap-bundler/core/bundler"
	"github.com/AvaProtocol/ap-bundler/core/encoder"
	"github.com/AvaProtocol/ap-bundler/core/relay"
	"github.com/AvaProtocol/ap-bundler/model"
)

type State string

const (
	Idle       State = "Idle"
	Preparing  State = "Preparing"
	Ready      State = "Ready"
	Submitting State = "Submitting"
	Succeeded  State = "Succeeded"
	Failed     State = "Failed"
)

const DefaultRebuildInterval = 8 * time.Second

var (
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrNotReady           = errors.New("bundle is not ready for submission")
	ErrClosed             = errors.New("session is closed")
	ErrAccountNotDeployed = errors.New("delegated account is not deployed")
)

// Inputs describe the user action a bundle is built for. Nil pointers are
// values that have not been resolved yet.
type Inputs struct {
	RequiredPayment    *big.Int        `json:"requiredPayment"`
	RequiredFlowAmount *big.Int        `json:"requiredFlowAmount"`
	Spender            *common.Address `json:"spender"`
	FlowOperator       *common.Address `json:"flowOperator"`
	BusinessCall       []byte          `json:"businessCall,omitempty"`

	RefundReceiver common.Address `json:"refundReceiver,omitempty"`
	RefundAmount   *big.Int       `json:"refundAmount,omitempty"`
}

// Resolved is the readiness gate on the inputs.
func (in Inputs) Resolved() bool {
	return in.RequiredPayment != nil && in.RequiredFlowAmount != nil && in.Spender != nil && in.FlowOperator != nil
}

// OffchainOnly is true when the action has nothing to execute on chain.
func (in Inputs) OffchainOnly() bool {
	return len(in.BusinessCall) == 0
}

func (in Inputs) buildInput(settings model.BundleSettings, balance *big.Int) bundler.BuildInput {
	return bundler.BuildInput{
		RequiredPayment:    in.RequiredPayment,
		RequiredFlowAmount: in.RequiredFlowAmount,
		Spender:            *in.Spender,
		FlowOperator:       *in.FlowOperator,
		BusinessCall:       in.BusinessCall,
		Settings:           settings,
		AccountBalance:     balance,
		RefundReceiver:     in.RefundReceiver,
		RefundAmount:       in.RefundAmount,
	}
}

func (in Inputs) Clone() Inputs {
	out := in
	out.RequiredPayment = cloneInt(in.RequiredPayment)
	out.RequiredFlowAmount = cloneInt(in.RequiredFlowAmount)
	out.RefundAmount = cloneInt(in.RefundAmount)
	if in.Spender != nil {
		spender := *in.Spender
		out.Spender = &spender
	}
	if in.FlowOperator != nil {
		operator := *in.FlowOperator
		out.FlowOperator = &operator
	}
	out.BusinessCall = append([]byte(nil), in.BusinessCall...)
	return out
}

func (in Inputs) Equal(other Inputs) bool {
	return intEqual(in.RequiredPayment, other.RequiredPayment) &&
		intEqual(in.RequiredFlowAmount, other.RequiredFlowAmount) &&
		intEqual(in.RefundAmount, other.RefundAmount) &&
		addrEqual(in.Spender, other.Spender) &&
		addrEqual(in.FlowOperator, other.FlowOperator) &&
		in.RefundReceiver == other.RefundReceiver &&
		string(in.BusinessCall) == string(other.BusinessCall)
}

// Prepared is what a rebuild produced.
type Prepared struct {
	Bundle      model.Bundle       `json:"bundle"`
	FeeEstimate *model.FeeEstimate `json:"feeEstimate"`
	// GasToken is the zero address when the relay fee is paid natively.
	GasToken common.Address       `json:"gasToken"`
	Settings model.BundleSettings `json:"settings"`
}

// Status is the observable view of a session.
type Status struct {
	SessionID    string             `json:"sessionId"`
	Account      common.Address     `json:"account"`
	Deployed     bool               `json:"deployed"`
	State        State              `json:"state"`
	IsPreparing  bool               `json:"isPreparing"`
	IsSubmitting bool               `json:"isSubmitting"`
	CanSubmit    bool               `json:"canSubmit"`
	Bundle       model.Bundle       `json:"bundle,omitempty"`
	FeeEstimate  *model.FeeEstimate `json:"feeEstimate,omitempty"`
	GasToken     common.Address     `json:"gasToken"`
	LastError    string             `json:"lastError,omitempty"`
	LastTaskID   string             `json:"lastTaskId,omitempty"`
	LastTxHash   common.Hash        `json:"lastTxHash,omitempty"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// ReceiptFunc receives the receipt of a successful on-chain submission.
type ReceiptFunc func(*types.Receipt)

// OffchainFunc performs an update that needs no chain interaction.
type OffchainFunc func(ctx context.Context) error

type SettingsSource interface {
	Snapshot() model.BundleSettings
}

type BundleBuilder interface {
	Build(in bundler.BuildInput) (model.Bundle, error)
}

type FeeEstimator interface {
	FeeToken() common.Address
	Estimate(ctx context.Context, bundle model.Bundle, account *model.DelegatedAccount) (*model.FeeEstimate, error)
	Requote(ctx context.Context, est *model.FeeEstimate, token common.Address) (*model.FeeEstimate, error)
}

type TxEncoder interface {
	ChainID() *big.Int
	EncodeDeployment(account *model.DelegatedAccount) (model.Call, error)
	ExecutionCall(bundle model.Bundle) (model.Call, error)
	EncodeExecute(ctx context.Context, call model.Call, opts encoder.ExecuteOptions) ([]byte, error)
}

type Relayer interface {
	Submit(ctx context.Context, chainID *big.Int, target common.Address, payload []byte, opts *relay.Options) (string, error)
	PollUntilTerminal(ctx context.Context, taskID string) (*types.Receipt, error)
}

type AccountState interface {
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	FeeTokenBalance(ctx context.Context, account common.Address) (*big.Int, error)
	IsDeployed(ctx context.Context, account common.Address) (bool, error)
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func intEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func addrEqual(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneEstimate(est *model.FeeEstimate) *model.FeeEstimate {
	if est == nil {
		return nil
	}
	out := *est
	out.GasUsed = cloneInt(est.GasUsed)
	out.GasUsedL1 = cloneInt(est.GasUsedL1)
	out.FeeAmount = cloneInt(est.FeeAmount)
	out.NetworkCost = cloneInt(est.NetworkCost)
	return &out
}
