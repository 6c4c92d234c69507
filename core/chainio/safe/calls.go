package safe

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-bundler/model"
)

// Flow operator permission bits of the constant flow agreement.
const (
	FlowPermissionCreate uint8 = 1 << iota
	FlowPermissionUpdate
	FlowPermissionDelete

	FlowPermissionCreateOrUpdate = FlowPermissionCreate | FlowPermissionUpdate
)

var maxInt96 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 95), big.NewInt(1))

// TokenCalls produces the populated calls for the fee-bearing super token and
// the flow forwarder.
type TokenCalls struct {
	FeeToken      common.Address
	FlowForwarder common.Address
}

func NewTokenCalls(feeToken, flowForwarder common.Address) *TokenCalls {
	return &TokenCalls{FeeToken: feeToken, FlowForwarder: flowForwarder}
}

// Wrap upgrades amount of native asset into the super token.
func (t *TokenCalls) Wrap(amount *big.Int) (model.Call, error) {
	data, err := PackUpgradeByETH()
	if err != nil {
		return model.Call{}, err
	}
	return model.NewCall(t.FeeToken, amount, data, model.OperationCall, model.LabelWrap), nil
}

func (t *TokenCalls) Approve(spender common.Address, amount *big.Int) (model.Call, error) {
	data, err := PackApprove(spender, amount)
	if err != nil {
		return model.Call{}, err
	}
	return model.NewCall(t.FeeToken, nil, data, model.OperationCall, model.LabelApprove), nil
}

func (t *TokenCalls) GrantFlowAllowance(operator common.Address, flowRateAllowance *big.Int, permissions uint8) (model.Call, error) {
	allowance := orZero(flowRateAllowance)
	if allowance.Sign() < 0 || allowance.Cmp(maxInt96) > 0 {
		return model.Call{}, fmt.Errorf("flow rate allowance %s out of int96 range", allowance)
	}

	data, err := PackUpdateFlowOperatorPermissions(t.FeeToken, operator, permissions, allowance)
	if err != nil {
		return model.Call{}, err
	}
	return model.NewCall(t.FlowForwarder, nil, data, model.OperationCall, model.LabelFlowAllowance), nil
}

// Refund pays amount of the fee token back to receiver.
func (t *TokenCalls) Refund(receiver common.Address, amount *big.Int) (model.Call, error) {
	data, err := PackTransfer(receiver, amount)
	if err != nil {
		return model.Call{}, err
	}
	return model.NewCall(t.FeeToken, nil, data, model.OperationCall, model.LabelRefund), nil
}
