package estimator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/AvaProtocol/ap-bundler/model"
)

func TestSelectGasToken(t *testing.T) {
	settings := func(sponsored, wrapAll, noWrap bool) model.BundleSettings {
		s := model.DefaultBundleSettings()
		s.Sponsored, s.WrapAll, s.NoWrap = sponsored, wrapAll, noWrap
		return s
	}
	fee := big.NewInt(100)

	cases := []struct {
		name     string
		settings model.BundleSettings
		balance  *big.Int
		want     GasToken
	}{
		{"unsponsored rich", settings(false, true, false), big.NewInt(1000), GasTokenNative},
		{"unsponsored poor", settings(false, false, true), big.NewInt(0), GasTokenNative},
		{"sponsored noWrap short", settings(true, false, true), big.NewInt(99), GasTokenNative},
		{"sponsored noWrap exact", settings(true, false, true), big.NewInt(100), GasTokenFeeAsset},
		{"sponsored noWrap beats wrapAll", settings(true, true, true), big.NewInt(1), GasTokenNative},
		{"sponsored wrapAll short", settings(true, true, false), big.NewInt(0), GasTokenFeeAsset},
		{"sponsored wrapAmount short", settings(true, false, false), big.NewInt(0), GasTokenFeeAsset},
		{"sponsored wrapAmount rich", settings(true, false, false), big.NewInt(500), GasTokenFeeAsset},
		{"nil balance", settings(true, false, true), nil, GasTokenNative},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SelectGasToken(tc.settings, tc.balance, fee))
		})
	}
}

func TestGasTokenAddress(t *testing.T) {
	feeToken := common.HexToAddress("0xf1")
	assert.Equal(t, feeToken, GasTokenFeeAsset.Address(feeToken))
	assert.Equal(t, common.Address{}, GasTokenNative.Address(feeToken))
	assert.Equal(t, "native", GasTokenNative.String())
}
