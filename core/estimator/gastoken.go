package estimator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-bundler/model"
)

type GasToken int

const (
	GasTokenNative GasToken = iota
	GasTokenFeeAsset
)

func (g GasToken) String() string {
	if g == GasTokenFeeAsset {
		return "fee_asset"
	}
	return "native"
}

// Address of the token paying the relay, the zero address for native.
func (g GasToken) Address(feeToken common.Address) common.Address {
	if g == GasTokenFeeAsset {
		return feeToken
	}
	return common.Address{}
}

type gasTokenKey struct {
	sponsored  bool
	noWrap     bool
	sufficient bool
}

// gasTokenTable lists every combination. Wrapping policies other than noWrap
// top up the fee asset inside the bundle, so the balance does not matter.
var gasTokenTable = map[gasTokenKey]GasToken{
	{sponsored: false, noWrap: false, sufficient: false}: GasTokenNative,
	{sponsored: false, noWrap: false, sufficient: true}:  GasTokenNative,
	{sponsored: false, noWrap: true, sufficient: false}:  GasTokenNative,
	{sponsored: false, noWrap: true, sufficient: true}:   GasTokenNative,
	{sponsored: true, noWrap: true, sufficient: false}:   GasTokenNative,
	{sponsored: true, noWrap: true, sufficient: true}:    GasTokenFeeAsset,
	{sponsored: true, noWrap: false, sufficient: false}:  GasTokenFeeAsset,
	{sponsored: true, noWrap: false, sufficient: true}:   GasTokenFeeAsset,
}

// SelectGasToken decides which asset pays the relay for a bundle whose fee
// is fee, given the account's fee asset balance.
func SelectGasToken(settings model.BundleSettings, feeAssetBalance, fee *big.Int) GasToken {
	if feeAssetBalance == nil {
		feeAssetBalance = new(big.Int)
	}
	if fee == nil {
		fee = new(big.Int)
	}

	return gasTokenTable[gasTokenKey{
		sponsored:  settings.Sponsored,
		noWrap:     settings.Policy() == model.WrapNone,
		sufficient: feeAssetBalance.Cmp(fee) >= 0,
	}]
}
