// Package encoder turns bundles into payloads the delegated account executes:
// the proxy deployment, the multiSend envelope and the signed execTransaction.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/ap-bundler/core/chainio"
	"github.com/AvaProtocol/ap-bundler/core/chainio/safe"
	"github.com/AvaProtocol/ap-bundler/core/chainio/signer"
	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/pkg/logger"
)

// DefaultThreshold of a freshly deployed account.
const DefaultThreshold = 1

// safeTxGas is the simulated gas plus 20%.
var (
	safeTxGasNumerator   = big.NewInt(12)
	safeTxGasDenominator = big.NewInt(10)
)

type Contracts struct {
	Singleton         common.Address
	ProxyFactory      common.Address
	FallbackHandler   common.Address
	MultiSend         common.Address
	SponsorCollector  common.Address
	RelayFeeCollector common.Address
}

// FeeQuoter converts a gas figure into an amount of feeToken.
type FeeQuoter interface {
	EstimatedFee(ctx context.Context, chainID *big.Int, feeToken common.Address, gasLimit, gasLimitL1 *big.Int) (*big.Int, error)
}

type NonceReader interface {
	Nonce(ctx context.Context, account common.Address) (*big.Int, error)
}

type Config struct {
	Contracts Contracts
	ChainID   *big.Int
	// SaltNonce overrides the deterministic salt derived from the first owner.
	SaltNonce *big.Int
}

type Encoder struct {
	contracts Contracts
	chainID   *big.Int
	saltNonce *big.Int

	reader chainio.ChainReader
	signer signer.Signer
	quoter FeeQuoter
	nonces NonceReader
	logger sdklogging.Logger

	codeMu       sync.Mutex
	creationCode []byte
}

func New(cfg Config, reader chainio.ChainReader, s signer.Signer, quoter FeeQuoter, nonces NonceReader, log sdklogging.Logger) *Encoder {
	return &Encoder{
		contracts: cfg.Contracts,
		chainID:   new(big.Int).Set(cfg.ChainID),
		saltNonce: cfg.SaltNonce,
		reader:    reader,
		signer:    s,
		quoter:    quoter,
		nonces:    nonces,
		logger:    logger.EnsureLogger(log),
	}
}

func (e *Encoder) ChainID() *big.Int {
	return new(big.Int).Set(e.chainID)
}

func (e *Encoder) Contracts() Contracts {
	return e.contracts
}

// SaltFor returns the salt nonce used to deploy an account for these owners.
func (e *Encoder) SaltFor(owners []common.Address) *big.Int {
	if e.saltNonce != nil {
		return new(big.Int).Set(e.saltNonce)
	}
	if len(owners) == 0 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(crypto.Keccak256(owners[0].Bytes()))
}

func (e *Encoder) initializer(owners []common.Address) ([]byte, error) {
	if len(owners) == 0 {
		return nil, errors.New("account has no owner")
	}
	return safe.PackSetup(owners, DefaultThreshold, e.contracts.FallbackHandler)
}

// EncodeDeployment builds the proxy factory call creating the account.
func (e *Encoder) EncodeDeployment(account *model.DelegatedAccount) (model.Call, error) {
	init, err := e.initializer(account.Owners)
	if err != nil {
		return model.Call{}, err
	}

	data, err := safe.PackCreateProxyWithNonce(e.contracts.Singleton, init, e.SaltFor(account.Owners))
	if err != nil {
		return model.Call{}, err
	}

	return model.NewCall(e.contracts.ProxyFactory, nil, data, model.OperationCall, model.LabelDeploy), nil
}

// PredictAddress returns where EncodeDeployment's call will deploy the
// account. The factory's proxy creation code is fetched once.
func (e *Encoder) PredictAddress(ctx context.Context, owners []common.Address) (common.Address, error) {
	init, err := e.initializer(owners)
	if err != nil {
		return common.Address{}, err
	}

	code, err := e.proxyCreationCode(ctx)
	if err != nil {
		return common.Address{}, err
	}

	return safe.PredictProxyAddress(e.contracts.ProxyFactory, e.contracts.Singleton, code, init, e.SaltFor(owners)), nil
}

func (e *Encoder) proxyCreationCode(ctx context.Context) ([]byte, error) {
	e.codeMu.Lock()
	defer e.codeMu.Unlock()

	if e.creationCode != nil {
		return e.creationCode, nil
	}

	data, err := safe.PackProxyCreationCode()
	if err != nil {
		return nil, err
	}
	ret, err := e.reader.CallContract(ctx, ethereum.CallMsg{To: &e.contracts.ProxyFactory, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("read proxy creation code: %w", err)
	}

	code, err := safe.UnpackProxyCreationCode(ret)
	if err != nil {
		return nil, err
	}
	e.creationCode = code
	return code, nil
}

// EncodeMultiSend packs calls back to back as
// (uint8 operation, address to, uint256 value, uint256 dataLength, bytes data).
func EncodeMultiSend(calls []model.Call) []byte {
	var out []byte
	for _, c := range calls {
		out = append(out, byte(c.Operation))
		out = append(out, c.To.Bytes()...)
		out = append(out, common.LeftPadBytes(c.ValueOrZero().Bytes(), 32)...)
		out = append(out, common.LeftPadBytes(big.NewInt(int64(len(c.Data))).Bytes(), 32)...)
		out = append(out, c.Data...)
	}
	return out
}

// MultiSendCall wraps calls into multiSend(bytes), executed by the account as
// a delegate call.
func (e *Encoder) MultiSendCall(calls []model.Call) (model.Call, error) {
	data, err := safe.PackMultiSend(EncodeMultiSend(calls))
	if err != nil {
		return model.Call{}, err
	}
	return model.NewCall(e.contracts.MultiSend, nil, data, model.OperationDelegateCall, model.LabelMultiSend), nil
}

// ExecutionCall is the single call the account executes for bundle: the call
// itself when alone, the multiSend envelope otherwise.
func (e *Encoder) ExecutionCall(bundle model.Bundle) (model.Call, error) {
	switch len(bundle) {
	case 0:
		return model.Call{}, errors.New("empty bundle")
	case 1:
		return bundle[0], nil
	default:
		return e.MultiSendCall(bundle)
	}
}

type ExecuteOptions struct {
	Account    common.Address
	GasLimit   *big.Int
	AutoRefund bool
	FeeToken   common.Address
	Sponsored  bool
	// Nonce is read from the account when nil.
	Nonce *big.Int
}

// BuildSafeTx fills the gas and refund parameters of the execution request.
func (e *Encoder) BuildSafeTx(ctx context.Context, call model.Call, opts ExecuteOptions) (*safe.SafeTx, error) {
	gasLimit := new(big.Int)
	if opts.GasLimit != nil {
		gasLimit.Set(opts.GasLimit)
	}

	safeTxGas := new(big.Int).Mul(gasLimit, safeTxGasNumerator)
	safeTxGas.Div(safeTxGas, safeTxGasDenominator)

	baseGas := new(big.Int)
	gasPrice := new(big.Int)
	if opts.AutoRefund {
		quote, err := e.quoter.EstimatedFee(ctx, e.chainID, opts.FeeToken, gasLimit, nil)
		if err != nil {
			return nil, fmt.Errorf("quote base gas: %w", err)
		}
		baseGas.Set(quote)
		gasPrice.SetInt64(1)
	}

	refundReceiver := e.contracts.RelayFeeCollector
	if opts.Sponsored {
		refundReceiver = e.contracts.SponsorCollector
	}

	nonce := opts.Nonce
	if nonce == nil {
		var err error
		if nonce, err = e.nonces.Nonce(ctx, opts.Account); err != nil {
			return nil, fmt.Errorf("read account nonce: %w", err)
		}
	}

	return &safe.SafeTx{
		To:             call.To,
		Value:          call.ValueOrZero(),
		Data:           common.CopyBytes(call.Data),
		Operation:      call.Operation,
		SafeTxGas:      safeTxGas,
		BaseGas:        baseGas,
		GasPrice:       gasPrice,
		GasToken:       opts.FeeToken,
		RefundReceiver: refundReceiver,
		Nonce:          new(big.Int).Set(nonce),
	}, nil
}

func (e *Encoder) SafeTxHash(tx *safe.SafeTx, account common.Address) common.Hash {
	return tx.Hash(e.chainID, account)
}

// EncodeExecute signs call as a SafeTx and returns the execTransaction
// calldata to send to the account.
func (e *Encoder) EncodeExecute(ctx context.Context, call model.Call, opts ExecuteOptions) ([]byte, error) {
	tx, err := e.BuildSafeTx(ctx, call, opts)
	if err != nil {
		return nil, err
	}

	hash := e.SafeTxHash(tx, opts.Account)
	sig, err := e.signer.SignHash(ctx, hash)
	if err != nil {
		if errors.Is(err, signer.ErrRejected) {
			return nil, &model.SigningRejected{Err: err}
		}
		return nil, fmt.Errorf("sign safe tx %s: %w", hash.Hex(), err)
	}

	e.logger.Debug("signed safe tx",
		"account", opts.Account.Hex(),
		"hash", hash.Hex(),
		"nonce", tx.Nonce.String(),
		"safeTxGas", tx.SafeTxGas.String(),
		"baseGas", tx.BaseGas.String(),
	)

	return safe.PackExecTransaction(tx, sig)
}
