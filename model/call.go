package model

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/samber/lo"
)

// Operation is the execution mode of a call inside the delegated account.
type Operation uint8

const (
	OperationCall         Operation = 0
	OperationDelegateCall Operation = 1
)

func (o Operation) String() string {
	if o == OperationDelegateCall {
		return "delegatecall"
	}
	return "call"
}

// CallLabel tags a call with the role it plays in a bundle. It never reaches
// the chain, it only exists so the bundle can be inspected and logged.
type CallLabel string

const (
	LabelWrap          CallLabel = "wrap"
	LabelApprove       CallLabel = "approve"
	LabelFlowAllowance CallLabel = "flow_allowance"
	LabelBusiness      CallLabel = "business"
	LabelRefund        CallLabel = "refund"
	LabelDeploy        CallLabel = "deploy"
	LabelMultiSend     CallLabel = "multisend"
)

// Call is one atomic ledger invocation. Treat it as immutable, NewCall copies
// the byte and integer inputs so callers can't mutate it afterwards.
type Call struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation Operation
	Label     CallLabel
}

func NewCall(to common.Address, value *big.Int, data []byte, op Operation, label CallLabel) Call {
	v := new(big.Int)
	if value != nil {
		v.Set(value)
	}

	return Call{
		To:        to,
		Value:     v,
		Data:      common.CopyBytes(data),
		Operation: op,
		Label:     label,
	}
}

// Populated reports whether the call carries both a target and calldata.
func (c Call) Populated() bool {
	return c.To != (common.Address{}) && len(c.Data) > 0
}

// ValueOrZero never returns nil
func (c Call) ValueOrZero() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

type callJSON struct {
	To        common.Address `json:"to"`
	Value     string         `json:"value"`
	Data      hexutil.Bytes  `json:"data"`
	Operation Operation      `json:"operation"`
	Label     CallLabel      `json:"label,omitempty"`
}

func (c Call) MarshalJSON() ([]byte, error) {
	return json.Marshal(callJSON{
		To:        c.To,
		Value:     c.ValueOrZero().String(),
		Data:      c.Data,
		Operation: c.Operation,
		Label:     c.Label,
	})
}

// Bundle is an ordered list of calls executed atomically. A nil bundle means
// the requested action has no on-chain effect.
type Bundle []Call

func (b Bundle) Labels() []CallLabel {
	return lo.Map(b, func(c Call, _ int) CallLabel { return c.Label })
}

// Index returns the position of the first call with the given label or -1.
func (b Bundle) Index(label CallLabel) int {
	_, idx, ok := lo.FindIndexOf(b, func(c Call) bool { return c.Label == label })
	if !ok {
		return -1
	}
	return idx
}

func (b Bundle) Clone() Bundle {
	if b == nil {
		return nil
	}
	return lo.Map(b, func(c Call, _ int) Call {
		return NewCall(c.To, c.Value, c.Data, c.Operation, c.Label)
	})
}

// TotalValue is the native amount the bundle moves out of the account.
func (b Bundle) TotalValue() *big.Int {
	return lo.Reduce(b, func(acc *big.Int, c Call, _ int) *big.Int {
		return acc.Add(acc, c.ValueOrZero())
	}, new(big.Int))
}
