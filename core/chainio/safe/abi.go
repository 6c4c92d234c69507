// Package safe holds the contract surface of the delegated account stack: the
// Safe account itself, its proxy factory, MultiSend, the simulation accessor,
// the fee-bearing super token, the flow forwarder and the rollup gas oracle.
package safe

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

var SafeMetaData = &bind.MetaData{
	ABI: `[
{"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},{"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},{"name":"signatures","type":"bytes"}],"name":"execTransaction","outputs":[{"name":"success","type":"bool"}],"stateMutability":"payable","type":"function"},
{"inputs":[],"name":"nonce","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getThreshold","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getOwners","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"targetContract","type":"address"},{"name":"calldataPayload","type":"bytes"}],"name":"simulateAndRevert","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"_owners","type":"address[]"},{"name":"_threshold","type":"uint256"},{"name":"to","type":"address"},{"name":"data","type":"bytes"},{"name":"fallbackHandler","type":"address"},{"name":"paymentToken","type":"address"},{"name":"payment","type":"uint256"},{"name":"paymentReceiver","type":"address"}],"name":"setup","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`,
}

var ProxyFactoryMetaData = &bind.MetaData{
	ABI: `[
{"inputs":[{"name":"_singleton","type":"address"},{"name":"initializer","type":"bytes"},{"name":"saltNonce","type":"uint256"}],"name":"createProxyWithNonce","outputs":[{"name":"proxy","type":"address"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"proxyCreationCode","outputs":[{"name":"","type":"bytes"}],"stateMutability":"pure","type":"function"}
]`,
}

var MultiSendMetaData = &bind.MetaData{
	ABI: `[
{"inputs":[{"name":"transactions","type":"bytes"}],"name":"multiSend","outputs":[],"stateMutability":"payable","type":"function"}
]`,
}

var SimulateTxAccessorMetaData = &bind.MetaData{
	ABI: `[
{"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"}],"name":"simulate","outputs":[{"name":"estimate","type":"uint256"},{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}],"stateMutability":"nonpayable","type":"function"}
]`,
}

// SuperTokenMetaData covers the native asset super token, which doubles as
// the ERC20 used for approvals and refunds.
var SuperTokenMetaData = &bind.MetaData{
	ABI: `[
{"inputs":[],"name":"upgradeByETH","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`,
}

var FlowForwarderMetaData = &bind.MetaData{
	ABI: `[
{"inputs":[{"name":"token","type":"address"},{"name":"flowOperator","type":"address"},{"name":"permissions","type":"uint8"},{"name":"flowrateAllowance","type":"int96"}],"name":"updateFlowOperatorPermissions","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`,
}

// GasPriceOracleMetaData is the OP stack predeploy pricing L1 data.
var GasPriceOracleMetaData = &bind.MetaData{
	ABI: `[
{"inputs":[{"name":"_data","type":"bytes"}],"name":"getL1GasUsed","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"_data","type":"bytes"}],"name":"getL1Fee","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`,
}
