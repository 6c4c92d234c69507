// Package estimator simulates a bundle through the delegated account and
// prices the gas it uses in the token paying the relay.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AvaProtocol/ap-bundler/core/chainio"
	"github.com/AvaProtocol/ap-bundler/core/chainio/safe"
	"github.com/AvaProtocol/ap-bundler/core/encoder"
	"github.com/AvaProtocol/ap-bundler/metrics"
	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/pkg/eip1559"
	"github.com/AvaProtocol/ap-bundler/pkg/logger"
)

// Quoter converts gas into an amount of feeToken.
type Quoter interface {
	EstimatedFee(ctx context.Context, chainID *big.Int, feeToken common.Address, gasLimit, gasLimitL1 *big.Int) (*big.Int, error)
}

type Config struct {
	ChainID            *big.Int
	MultiSend          common.Address
	SimulateTxAccessor common.Address
	FeeToken           common.Address
	// L1GasOracle is set on rollups that charge for L1 data.
	L1GasOracle common.Address
}

type Estimator struct {
	config  Config
	reader  chainio.ChainReader
	quoter  Quoter
	metrics metrics.MetricsGenerator
	logger  sdklogging.Logger
}

func New(config Config, reader chainio.ChainReader, quoter Quoter, m metrics.MetricsGenerator, log sdklogging.Logger) *Estimator {
	return &Estimator{
		config:  config,
		reader:  reader,
		quoter:  quoter,
		metrics: metrics.EnsureMetrics(m),
		logger:  logger.EnsureLogger(log),
	}
}

func (e *Estimator) FeeToken() common.Address {
	return e.config.FeeToken
}

// Estimate simulates bundle on account and quotes the gas in the fee token.
//
// An account that is not deployed yet cannot be simulated against, so it gets
// a zero estimate; deployment is charged with the first real submission.
func (e *Estimator) Estimate(ctx context.Context, bundle model.Bundle, account *model.DelegatedAccount) (*model.FeeEstimate, error) {
	bundleHash := model.HashBundle(bundle)
	if !account.Deployed {
		e.metrics.IncEstimate("undeployed")
		return model.ZeroEstimate(e.config.FeeToken, bundleHash), nil
	}

	est, err := e.estimate(ctx, bundle, account, bundleHash)
	if err != nil {
		e.metrics.IncEstimate("error")
		return nil, err
	}
	e.metrics.IncEstimate("ok")
	return est, nil
}

func (e *Estimator) estimate(ctx context.Context, bundle model.Bundle, account *model.DelegatedAccount, bundleHash common.Hash) (*model.FeeEstimate, error) {
	multiSendData, err := safe.PackMultiSend(encoder.EncodeMultiSend(bundle))
	if err != nil {
		return nil, err
	}

	gasUsed, err := e.simulate(ctx, account.Address, multiSendData)
	if err != nil {
		return nil, err
	}

	gasUsedL1, err := e.l1GasUsed(ctx, multiSendData)
	if err != nil {
		return nil, &model.EstimationError{Reason: "l1 gas oracle", Err: err}
	}

	fee, err := e.quoter.EstimatedFee(ctx, e.config.ChainID, e.config.FeeToken, gasUsed, gasUsedL1)
	if err != nil {
		return nil, fmt.Errorf("quote fee: %w", err)
	}

	est := &model.FeeEstimate{
		GasUsed:    gasUsed,
		GasUsedL1:  gasUsedL1,
		FeeAmount:  fee,
		FeeToken:   e.config.FeeToken,
		BundleHash: bundleHash,
	}

	if cost, err := eip1559.Cost(ctx, e.reader, gasUsed); err == nil {
		est.NetworkCost = cost
	} else {
		e.logger.Warn("cannot price network cost", "error", err)
	}

	e.logger.Debug("bundle estimated",
		"account", account.Address.Hex(),
		"calls", len(bundle),
		"gasUsed", gasUsed.String(),
		"gasUsedL1", gasUsedL1.String(),
		"fee", fee.String(),
	)
	return est, nil
}

// simulate runs the multiSend through simulateAndRevert on the account and
// returns the gas the accessor measured.
func (e *Estimator) simulate(ctx context.Context, account common.Address, multiSendData []byte) (*big.Int, error) {
	simulateData, err := safe.PackSimulate(e.config.MultiSend, new(big.Int), multiSendData, model.OperationDelegateCall)
	if err != nil {
		return nil, err
	}
	callData, err := safe.PackSimulateAndRevert(e.config.SimulateTxAccessor, simulateData)
	if err != nil {
		return nil, err
	}

	ret, err := e.reader.CallContract(ctx, ethereum.CallMsg{To: &account, Data: callData}, nil)
	if err != nil {
		ret, err = revertData(err)
		if err != nil {
			return nil, &model.EstimationError{Reason: "simulation call failed", Err: err}
		}
	}

	ok, returnData, err := safe.DecodeSimulateAndRevert(ret)
	if err != nil {
		return nil, &model.EstimationError{Reason: "malformed simulation result", Err: err}
	}
	if !ok {
		return nil, &model.EstimationError{Reason: "simulation reverted", Err: revertReason(returnData)}
	}

	res, err := safe.UnpackSimulate(returnData)
	if err != nil {
		return nil, &model.EstimationError{Reason: "malformed simulation result", Err: err}
	}
	if !res.Success {
		return nil, &model.EstimationError{Reason: "bundle reverted in simulation", Err: revertReason(res.ReturnData)}
	}
	return res.Estimate, nil
}

// revertData pulls the revert payload out of an eth_call error. The node
// returns it hex encoded as the error data.
func revertData(err error) ([]byte, error) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, err
	}

	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return nil, err
	}
	data, decodeErr := hexutil.Decode(hexData)
	if decodeErr != nil {
		return nil, fmt.Errorf("decode revert data: %w", decodeErr)
	}
	return data, nil
}

func revertReason(data []byte) error {
	if len(data) == 0 {
		return errors.New("execution reverted")
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return fmt.Errorf("execution reverted: %s", reason)
	}
	return fmt.Errorf("execution reverted: %s", hexutil.Encode(data))
}

func (e *Estimator) l1GasUsed(ctx context.Context, payload []byte) (*big.Int, error) {
	if e.config.L1GasOracle == (common.Address{}) {
		return new(big.Int), nil
	}

	data, err := safe.PackL1GasUsed(payload)
	if err != nil {
		return nil, err
	}
	ret, err := e.reader.CallContract(ctx, ethereum.CallMsg{To: &e.config.L1GasOracle, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return safe.UnpackL1GasUsed(ret)
}

// Requote prices an existing estimate in another token. The simulation is
// not repeated, only the conversion.
func (e *Estimator) Requote(ctx context.Context, est *model.FeeEstimate, token common.Address) (*model.FeeEstimate, error) {
	if est.FeeToken == token {
		return est, nil
	}
	if est.IsZero() {
		return model.ZeroEstimate(token, est.BundleHash), nil
	}

	fee, err := e.quoter.EstimatedFee(ctx, e.config.ChainID, token, est.GasUsed, est.GasUsedL1)
	if err != nil {
		return nil, fmt.Errorf("quote fee: %w", err)
	}

	out := *est
	out.FeeAmount = fee
	out.FeeToken = token
	return &out, nil
}
