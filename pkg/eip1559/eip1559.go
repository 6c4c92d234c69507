package eip1559

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// FeeReader is the part of an ethclient needed to price gas.
type FeeReader interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

var (
	// floor for the priority fee so relays are willing to include us
	MinPriorityFee = big.NewInt(1_000_000) // 0.001 gwei, rollups price in fractions of gwei
)

// SuggestFee returns (maxFeePerGas, maxPriorityFeePerGas) for the next block.
func SuggestFee(ctx context.Context, client FeeReader) (*big.Int, *big.Int, error) {
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	// Add 13% buffer to tip for safety
	buffer := new(big.Int).Div(tipCap, big.NewInt(100))
	buffer.Mul(buffer, big.NewInt(13))
	maxPriorityFeePerGas := new(big.Int).Add(tipCap, buffer)
	if maxPriorityFeePerGas.Cmp(MinPriorityFee) < 0 {
		maxPriorityFeePerGas = new(big.Int).Set(MinPriorityFee)
	}

	if header.BaseFee == nil {
		// legacy chain, the tip is the whole price
		return new(big.Int).Set(maxPriorityFeePerGas), maxPriorityFeePerGas, nil
	}

	// maxFeePerGas = 2 * baseFee + tip, survives a full base fee doubling
	maxFeePerGas := new(big.Int).Add(
		new(big.Int).Mul(header.BaseFee, big.NewInt(2)),
		maxPriorityFeePerGas,
	)

	return maxFeePerGas, maxPriorityFeePerGas, nil
}

// Cost is gas * maxFeePerGas, the worst case native cost of running gas units.
func Cost(ctx context.Context, client FeeReader, gas *big.Int) (*big.Int, error) {
	maxFee, _, err := SuggestFee(ctx, client)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(gas, maxFee), nil
}
