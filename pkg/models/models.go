package models

// Intent represents a normalized action request produced by an external
// assistant or UI form. Params carries the kind-specific fields untouched;
// deep validation happens in the component that consumes each field.
type Intent struct {
	Kind   string                 `json:"action"`
	Params map[string]interface{} `json:"-"`
}

// Transfer is a single token movement request. Amount stays a decimal
// string until it is converted with the resolved token's decimals at
// dispatch time.
type Transfer struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	To     string `json:"to"`
}

// TransferResult is the outcome of one submitted transfer.
type TransferResult struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	To     string `json:"to"`
	Hash   string `json:"hash"`
}

// Strategy names the dispatch path chosen for a batch of transfers.
type Strategy string

const (
	StrategyAtomic         Strategy = "atomic"
	StrategyCustodialBatch Strategy = "custodial_batch"
	StrategySequential     Strategy = "sequential"
)

// DispatchResult carries the outcome of a multi-transfer dispatch. For the
// batch strategies Hash is the single transaction hash and Completed lists
// every transfer. For the sequential strategy Completed holds the transfers
// that made it on chain before a failure; completed entries are final,
// irreversible state even when the dispatch as a whole returns an error.
type DispatchResult struct {
	Strategy  Strategy         `json:"strategy"`
	Hash      string           `json:"hash,omitempty"`
	Completed []TransferResult `json:"completed"`
}

// Order is a limit order as the engine knows it right after placement.
// OnChainID may be empty immediately after placement and can be recovered
// later from TxHash.
type Order struct {
	OnChainID string  `json:"on_chain_order_id"`
	Token     string  `json:"token"`
	Amount    string  `json:"amount"`
	IsBid     bool    `json:"is_bid"`
	Price     float64 `json:"price"`
	Tick      int     `json:"tick"`
	TxHash    string  `json:"tx_hash"`
}

// SwapResult is the outcome of a swap action.
type SwapResult struct {
	Hash      string `json:"hash"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
}

// DeployTokenResult is the outcome of a deploy_token action.
type DeployTokenResult struct {
	TokenAddress string `json:"tokenAddress"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Hash         string `json:"hash"`
}

// CreatePairResult is the outcome of a create_pair action.
type CreatePairResult struct {
	PairKey         string `json:"pairKey"`
	BaseTokenSymbol string `json:"baseTokenSymbol"`
	QuoteToken      string `json:"quoteToken"`
	Hash            string `json:"hash"`
}

// ScheduledPaymentResult is the outcome of one escrowed one-time schedule.
type ScheduledPaymentResult struct {
	ScheduleID string `json:"scheduleId"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	To         string `json:"to"`
	ExecuteAt  int64  `json:"executeAt"`
	Hash       string `json:"hash"`
}

// RecurringPaymentResult is the outcome of a recurring (pull) schedule.
type RecurringPaymentResult struct {
	ScheduleID      string `json:"scheduleId"`
	Token           string `json:"token"`
	Amount          string `json:"amount"`
	To              string `json:"to"`
	IntervalSeconds int64  `json:"intervalSeconds"`
	EndTime         int64  `json:"endTime"`
	FirstDueTime    int64  `json:"firstDueTime"`
	Hash            string `json:"hash"`
}

// Balance is one token balance row returned by get_balance.
type Balance struct {
	Symbol    string `json:"symbol"`
	Address   string `json:"address"`
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
}

// TrackedToken is the outcome of a track_token action.
type TrackedToken struct {
	Tracked  bool   `json:"tracked"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}
