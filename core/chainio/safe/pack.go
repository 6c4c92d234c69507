package safe

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/ap-bundler/model"
)

// mustABI parses once (bind.MetaData caches) and panics on a broken ABI
// string, which can only be a programming error.
func mustABI(md *bind.MetaData) *abi.ABI {
	parsed, err := md.GetAbi()
	if err != nil {
		panic(fmt.Errorf("invalid contract ABI: %w", err))
	}
	return parsed
}

func PackExecTransaction(tx *SafeTx, signatures []byte) ([]byte, error) {
	return mustABI(SafeMetaData).Pack("execTransaction",
		tx.To,
		tx.valueOrZero(),
		tx.Data,
		uint8(tx.Operation),
		orZero(tx.SafeTxGas),
		orZero(tx.BaseGas),
		orZero(tx.GasPrice),
		tx.GasToken,
		tx.RefundReceiver,
		signatures,
	)
}

func PackNonce() ([]byte, error) {
	return mustABI(SafeMetaData).Pack("nonce")
}

func UnpackNonce(ret []byte) (*big.Int, error) {
	return unpackUint256(mustABI(SafeMetaData), "nonce", ret)
}

// PackSetup builds the initializer run by the proxy factory right after the
// proxy is created. No module setup call and no deployment payment.
func PackSetup(owners []common.Address, threshold uint64, fallbackHandler common.Address) ([]byte, error) {
	return mustABI(SafeMetaData).Pack("setup",
		owners,
		new(big.Int).SetUint64(threshold),
		common.Address{},
		[]byte{},
		fallbackHandler,
		common.Address{},
		new(big.Int),
		common.Address{},
	)
}

func PackSimulateAndRevert(target common.Address, payload []byte) ([]byte, error) {
	return mustABI(SafeMetaData).Pack("simulateAndRevert", target, payload)
}

func PackCreateProxyWithNonce(singleton common.Address, initializer []byte, saltNonce *big.Int) ([]byte, error) {
	return mustABI(ProxyFactoryMetaData).Pack("createProxyWithNonce", singleton, initializer, orZero(saltNonce))
}

func PackProxyCreationCode() ([]byte, error) {
	return mustABI(ProxyFactoryMetaData).Pack("proxyCreationCode")
}

func UnpackProxyCreationCode(ret []byte) ([]byte, error) {
	out, err := mustABI(ProxyFactoryMetaData).Unpack("proxyCreationCode", ret)
	if err != nil {
		return nil, err
	}
	code, ok := out[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected proxyCreationCode output %T", out[0])
	}
	return code, nil
}

// PredictProxyAddress derives the CREATE2 address the factory will deploy the
// proxy to for this initializer and salt nonce.
func PredictProxyAddress(factory, singleton common.Address, creationCode, initializer []byte, saltNonce *big.Int) common.Address {
	salt := crypto.Keccak256(
		crypto.Keccak256(initializer),
		common.LeftPadBytes(orZero(saltNonce).Bytes(), 32),
	)

	initCode := make([]byte, 0, len(creationCode)+32)
	initCode = append(initCode, creationCode...)
	initCode = append(initCode, common.LeftPadBytes(singleton.Bytes(), 32)...)

	var salt32 [32]byte
	copy(salt32[:], salt)
	return crypto.CreateAddress2(factory, salt32, crypto.Keccak256(initCode))
}

func PackMultiSend(transactions []byte) ([]byte, error) {
	return mustABI(MultiSendMetaData).Pack("multiSend", transactions)
}

func PackSimulate(to common.Address, value *big.Int, data []byte, op model.Operation) ([]byte, error) {
	return mustABI(SimulateTxAccessorMetaData).Pack("simulate", to, orZero(value), data, uint8(op))
}

// SimulateResult is what the accessor returns from inside simulateAndRevert.
type SimulateResult struct {
	Estimate   *big.Int
	Success    bool
	ReturnData []byte
}

func UnpackSimulate(ret []byte) (*SimulateResult, error) {
	out, err := mustABI(SimulateTxAccessorMetaData).Unpack("simulate", ret)
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("simulate returned %d values, want 3", len(out))
	}

	estimate, ok1 := out[0].(*big.Int)
	success, ok2 := out[1].(bool)
	returnData, ok3 := out[2].([]byte)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("unexpected simulate output types %T %T %T", out[0], out[1], out[2])
	}

	return &SimulateResult{Estimate: estimate, Success: success, ReturnData: returnData}, nil
}

// DecodeSimulateAndRevert splits the revert payload of simulateAndRevert:
// a 32 byte success flag, a 32 byte length and then the returned bytes.
func DecodeSimulateAndRevert(payload []byte) (bool, []byte, error) {
	if len(payload) < 64 {
		return false, nil, fmt.Errorf("simulation payload too short: %d bytes", len(payload))
	}

	success := new(big.Int).SetBytes(payload[:32]).Sign() != 0
	length := new(big.Int).SetBytes(payload[32:64])
	if !length.IsUint64() || length.Uint64() > uint64(len(payload)-64) {
		return false, nil, fmt.Errorf("simulation payload length %s exceeds %d bytes", length, len(payload)-64)
	}

	return success, payload[64 : 64+length.Uint64()], nil
}

func PackUpgradeByETH() ([]byte, error) {
	return mustABI(SuperTokenMetaData).Pack("upgradeByETH")
}

func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return mustABI(SuperTokenMetaData).Pack("approve", spender, orZero(amount))
}

func PackTransfer(recipient common.Address, amount *big.Int) ([]byte, error) {
	return mustABI(SuperTokenMetaData).Pack("transfer", recipient, orZero(amount))
}

func PackBalanceOf(holder common.Address) ([]byte, error) {
	return mustABI(SuperTokenMetaData).Pack("balanceOf", holder)
}

func UnpackBalanceOf(ret []byte) (*big.Int, error) {
	return unpackUint256(mustABI(SuperTokenMetaData), "balanceOf", ret)
}

func PackUpdateFlowOperatorPermissions(token, operator common.Address, permissions uint8, allowance *big.Int) ([]byte, error) {
	return mustABI(FlowForwarderMetaData).Pack("updateFlowOperatorPermissions", token, operator, permissions, orZero(allowance))
}

func PackL1GasUsed(data []byte) ([]byte, error) {
	return mustABI(GasPriceOracleMetaData).Pack("getL1GasUsed", data)
}

func UnpackL1GasUsed(ret []byte) (*big.Int, error) {
	return unpackUint256(mustABI(GasPriceOracleMetaData), "getL1GasUsed", ret)
}

func unpackUint256(parsed *abi.ABI, method string, ret []byte) (*big.Int, error) {
	out, err := parsed.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
