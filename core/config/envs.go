package config

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type ChainEnv string

const (
	EthereumEnv = ChainEnv("ethereum")
	SepoliaEnv  = ChainEnv("sepolia")
	OptimismEnv = ChainEnv("optimism")
	BaseEnv     = ChainEnv("base")
	UnknownEnv  = ChainEnv("unknown")
)

var chainEnvs = map[uint64]ChainEnv{
	1:        EthereumEnv,
	11155111: SepoliaEnv,
	10:       OptimismEnv,
	8453:     BaseEnv,
}

var explorers = map[ChainEnv]string{
	EthereumEnv: "https://etherscan.io",
	SepoliaEnv:  "https://sepolia.etherscan.io",
	OptimismEnv: "https://optimistic.etherscan.io",
	BaseEnv:     "https://basescan.org",
}

func ChainEnvOf(chainID *big.Int) ChainEnv {
	if chainID == nil || !chainID.IsUint64() {
		return UnknownEnv
	}
	if env, ok := chainEnvs[chainID.Uint64()]; ok {
		return env
	}
	return UnknownEnv
}

// IsRollup reports chains that charge an L1 data fee on top of execution.
func IsRollup(chainID *big.Int) bool {
	env := ChainEnvOf(chainID)
	return env == OptimismEnv || env == BaseEnv
}

// TxURL links a transaction on the chain's explorer, empty when unknown.
func TxURL(chainID *big.Int, hash common.Hash) string {
	base, ok := explorers[ChainEnvOf(chainID)]
	if !ok {
		return ""
	}
	return base + "/tx/" + hash.Hex()
}
