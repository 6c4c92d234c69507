package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// DelegatedAccount is the smart account fronting every bundle. It may not
// exist on-chain yet, in which case the first submission deploys it.
type DelegatedAccount struct {
	Address   common.Address   `json:"address"`
	Deployed  bool             `json:"deployed"`
	Owners    []common.Address `json:"owners"`
	Threshold uint64           `json:"threshold"`
}

func NewDelegatedAccount(address common.Address, owner common.Address) *DelegatedAccount {
	return &DelegatedAccount{
		Address:   address,
		Owners:    []common.Address{owner},
		Threshold: 1,
	}
}

// MarkDeployed is one way, an account never becomes undeployed again.
func (a *DelegatedAccount) MarkDeployed() {
	a.Deployed = true
}

func (a DelegatedAccount) Owner() common.Address {
	if len(a.Owners) == 0 {
		return common.Address{}
	}
	return a.Owners[0]
}
