// Package contracts holds the ABI surfaces and well-known addresses of the
// on-chain contracts the engine drives: TIP-20 tokens, the TIP-20 factory,
// the stablecoin exchange, the payment scheduler and the batch-transfer
// helper.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Well-known singleton addresses on Tempo Moderato.
var (
	ExchangeAddress  = common.HexToAddress("0xDEc0000000000000000000000000000000000000")
	FactoryAddress   = common.HexToAddress("0x20Fc000000000000000000000000000000000000")
	SchedulerAddress = common.HexToAddress("0x325EDdf3daB4cD51b2690253a11D3397850a7Bd2")
)

// IssuerRole is the TIP-20 access-control role required to mint.
var IssuerRole = crypto.Keccak256Hash([]byte("ISSUER_ROLE"))

// ERC20JSON covers the TIP-20 / ERC-20 surface the engine needs.
const ERC20JSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"mint","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"grantRole","type":"function","stateMutability":"nonpayable","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
	{"name":"hasRole","type":"function","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

// FactoryJSON is the TIP-20 factory surface: deterministic-address token
// creation plus the TokenCreated event used by the resolver's chain scan.
const FactoryJSON = `[
	{"name":"createToken","type":"function","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"currency","type":"string"},{"name":"quoteToken","type":"address"},{"name":"admin","type":"address"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"token","type":"address"}]},
	{"name":"predictToken","type":"function","stateMutability":"view","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"currency","type":"string"},{"name":"quoteToken","type":"address"},{"name":"admin","type":"address"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"token","type":"address"}]},
	{"name":"TokenCreated","type":"event","inputs":[{"name":"token","type":"address","indexed":true},{"name":"name","type":"string","indexed":false},{"name":"symbol","type":"string","indexed":false},{"name":"currency","type":"string","indexed":false},{"name":"quoteToken","type":"address","indexed":false},{"name":"admin","type":"address","indexed":false},{"name":"salt","type":"bytes32","indexed":false}]}
]`

// ExchangeJSON is the stablecoin DEX surface: quotes, swaps, tick-priced
// limit orders and pair creation.
const ExchangeJSON = `[
	{"name":"quoteSwapExactAmountIn","type":"function","stateMutability":"view","inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint128"}],"outputs":[{"name":"amountOut","type":"uint128"}]},
	{"name":"swapExactAmountIn","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint128"},{"name":"minAmountOut","type":"uint128"}],"outputs":[{"name":"amountOut","type":"uint128"}]},
	{"name":"createPair","type":"function","stateMutability":"nonpayable","inputs":[{"name":"base","type":"address"}],"outputs":[{"name":"key","type":"bytes32"}]},
	{"name":"place","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint128"},{"name":"isBid","type":"bool"},{"name":"tick","type":"int16"}],"outputs":[{"name":"orderId","type":"uint128"}]},
	{"name":"cancel","type":"function","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint128"}],"outputs":[]},
	{"name":"OrderPlaced","type":"event","inputs":[{"name":"orderId","type":"uint128","indexed":true},{"name":"maker","type":"address","indexed":true},{"name":"token","type":"address","indexed":true},{"name":"amount","type":"uint128","indexed":false},{"name":"isBid","type":"bool","indexed":false},{"name":"tick","type":"int16","indexed":false},{"name":"flipTick","type":"int16","indexed":false}]},
	{"name":"PairCreated","type":"event","inputs":[{"name":"key","type":"bytes32","indexed":true},{"name":"base","type":"address","indexed":true},{"name":"quote","type":"address","indexed":true}]}
]`

// SchedulerJSON is the payment-scheduler surface. One-time schedules escrow
// funds at creation; recurring schedules pull from the payer at each run.
const SchedulerJSON = `[
	{"name":"createScheduled","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"executeAt","type":"uint256"}],"outputs":[{"name":"id","type":"uint256"}]},
	{"name":"createRecurring","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"intervalSeconds","type":"uint256"},{"name":"endTime","type":"uint256"},{"name":"firstDueTime","type":"uint256"}],"outputs":[{"name":"id","type":"uint256"}]},
	{"name":"executeScheduled","type":"function","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
	{"name":"executeRecurring","type":"function","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
	{"name":"cancelScheduled","type":"function","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
	{"name":"cancelRecurring","type":"function","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
	{"name":"nextOneTimeId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"nextRecurringId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"oneTimeSchedules","type":"function","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"payer","type":"address"},{"name":"token","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"executeAt","type":"uint256"},{"name":"executed","type":"bool"},{"name":"cancelled","type":"bool"}]},
	{"name":"recurringSchedules","type":"function","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"payer","type":"address"},{"name":"token","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"intervalSeconds","type":"uint256"},{"name":"nextDueTime","type":"uint256"},{"name":"endTime","type":"uint256"},{"name":"cancelled","type":"bool"}]},
	{"name":"OneTimeScheduled","type":"event","inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"payer","type":"address","indexed":true},{"name":"token","type":"address","indexed":false},{"name":"recipient","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"executeAt","type":"uint256","indexed":false}]},
	{"name":"OneTimeExecuted","type":"event","inputs":[{"name":"id","type":"uint256","indexed":true}]},
	{"name":"RecurringScheduled","type":"event","inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"payer","type":"address","indexed":true},{"name":"token","type":"address","indexed":false},{"name":"recipient","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"intervalSeconds","type":"uint256","indexed":false},{"name":"nextDueTime","type":"uint256","indexed":false},{"name":"endTime","type":"uint256","indexed":false}]},
	{"name":"RecurringExecuted","type":"event","inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"nextDueTime","type":"uint256","indexed":false}]}
]`

// BatchTransferJSON is the batch-transfer helper used by the custodial
// batch dispatch strategy: one call, many pull-based transfers.
const BatchTransferJSON = `[
	{"name":"batchTransfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokens","type":"address[]"},{"name":"recipients","type":"address[]"},{"name":"amounts","type":"uint256[]"}],"outputs":[]}
]`

// Parsed ABIs, ready for packing calls and decoding logs.
var (
	ERC20ABI         = mustParseABI(ERC20JSON)
	FactoryABI       = mustParseABI(FactoryJSON)
	ExchangeABI      = mustParseABI(ExchangeJSON)
	SchedulerABI     = mustParseABI(SchedulerJSON)
	BatchTransferABI = mustParseABI(BatchTransferJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
