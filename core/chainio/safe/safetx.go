package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/ap-bundler/model"
)

var (
	domainSeparatorTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypeHash          = crypto.Keccak256Hash([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// SafeTx is the authorized execution request the account owner signs.
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      model.Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

func (tx *SafeTx) valueOrZero() *big.Int {
	return orZero(tx.Value)
}

func DomainSeparator(chainID *big.Int, account common.Address) common.Hash {
	return crypto.Keccak256Hash(
		domainSeparatorTypeHash.Bytes(),
		word(orZero(chainID)),
		common.LeftPadBytes(account.Bytes(), 32),
	)
}

// Hash returns the EIP-712 digest the owners sign for this transaction on
// the given account.
func (tx *SafeTx) Hash(chainID *big.Int, account common.Address) common.Hash {
	structHash := crypto.Keccak256Hash(
		safeTxTypeHash.Bytes(),
		common.LeftPadBytes(tx.To.Bytes(), 32),
		word(tx.valueOrZero()),
		crypto.Keccak256(tx.Data),
		word(big.NewInt(int64(tx.Operation))),
		word(orZero(tx.SafeTxGas)),
		word(orZero(tx.BaseGas)),
		word(orZero(tx.GasPrice)),
		common.LeftPadBytes(tx.GasToken.Bytes(), 32),
		common.LeftPadBytes(tx.RefundReceiver.Bytes(), 32),
		word(orZero(tx.Nonce)),
	)

	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		DomainSeparator(chainID, account).Bytes(),
		structHash.Bytes(),
	)
}

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}
