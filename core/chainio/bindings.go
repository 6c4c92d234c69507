package chainio

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-bundler/core/chainio/safe"
)

// AccountReader reads the on-chain state of a delegated account and its fee
// token balance.
type AccountReader struct {
	reader   ChainReader
	feeToken common.Address
}

func NewAccountReader(reader ChainReader, feeToken common.Address) *AccountReader {
	return &AccountReader{reader: reader, feeToken: feeToken}
}

func (r *AccountReader) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return r.reader.BalanceAt(ctx, account, nil)
}

func (r *AccountReader) FeeTokenBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	data, err := safe.PackBalanceOf(account)
	if err != nil {
		return nil, err
	}

	ret, err := r.reader.CallContract(ctx, ethereum.CallMsg{To: &r.feeToken, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", account.Hex(), err)
	}
	return safe.UnpackBalanceOf(ret)
}

func (r *AccountReader) IsDeployed(ctx context.Context, account common.Address) (bool, error) {
	code, err := r.reader.CodeAt(ctx, account, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// Nonce returns the account's execution nonce. An account that is not
// deployed yet starts at zero.
func (r *AccountReader) Nonce(ctx context.Context, account common.Address) (*big.Int, error) {
	deployed, err := r.IsDeployed(ctx, account)
	if err != nil {
		return nil, err
	}
	if !deployed {
		return new(big.Int), nil
	}

	data, err := safe.PackNonce()
	if err != nil {
		return nil, err
	}
	ret, err := r.reader.CallContract(ctx, ethereum.CallMsg{To: &account, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("nonce of %s: %w", account.Hex(), err)
	}
	return safe.UnpackNonce(ret)
}
