package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/exchange"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
	"github.com/sisyphus-fi/tempo-engine/pkg/tokens"
)

func (e *Engine) dispatchIntent(ctx context.Context, intent *models.Intent) (interface{}, error) {
	switch intent.Kind {
	case "send_payment":
		return e.sendPayment(ctx, intent.Params)
	case "send_parallel":
		return e.sendParallel(ctx, intent.Params)
	case "schedule_payment":
		return e.schedulePayment(ctx, intent.Params)
	case "recurring_payment":
		return e.recurringPayment(ctx, intent.Params)
	case "execute_scheduled_payment":
		return e.scheduleCall(ctx, intent.Params, e.scheduler.ExecuteOneTime)
	case "execute_recurring_payment":
		return e.scheduleCall(ctx, intent.Params, e.scheduler.ExecuteRecurring)
	case "cancel_scheduled_payment":
		return e.scheduleCall(ctx, intent.Params, e.scheduler.CancelOneTime)
	case "cancel_recurring_payment":
		return e.scheduleCall(ctx, intent.Params, e.scheduler.CancelRecurring)
	case "get_balance":
		return e.Balances(ctx)
	case "faucet":
		return e.requestFaucet(ctx)
	case "set_fee_token":
		return e.setFeeTokenAction(ctx, intent.Params)
	case "swap":
		return e.swap(ctx, intent.Params)
	case "place_limit_order":
		return e.placeLimitOrder(ctx, intent.Params)
	case "cancel_order":
		return e.cancelOrder(ctx, intent.Params)
	case "get_open_orders":
		return e.openOrders(ctx)
	case "deploy_token":
		return e.deployToken(ctx, intent.Params)
	case "create_pair":
		return e.createPair(ctx, intent.Params)
	case "mint_token":
		return e.mintToken(ctx, intent.Params)
	case "provide_liquidity":
		return e.provideLiquidity(ctx, intent.Params)
	case "track_token":
		return e.trackToken(ctx, intent.Params)
	default:
		return nil, models.NewValidationError("action", fmt.Sprintf("unknown kind %q", intent.Kind))
	}
}

func (e *Engine) sendPayment(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	token, err := stringParam(params, "token")
	if err != nil {
		return nil, err
	}
	amount, err := amountParam(params, "amount")
	if err != nil {
		return nil, err
	}
	to, err := stringParam(params, "to")
	if err != nil {
		return nil, err
	}

	return e.dispatcher.Send(ctx, []models.Transfer{{Token: token, Amount: amount, To: to}})
}

func (e *Engine) sendParallel(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	transfers, err := transfersParam(params, "transfers")
	if err != nil {
		return nil, err
	}
	return e.dispatcher.Send(ctx, transfers)
}

func (e *Engine) schedulePayment(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	executeAt, err := executeAtParam(params)
	if err != nil {
		return nil, err
	}
	transfers, err := transfersParam(params, "transfers")
	if err != nil {
		return nil, err
	}
	return e.scheduler.ScheduleOneTime(ctx, transfers, executeAt)
}

func (e *Engine) recurringPayment(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	token, err := stringParam(params, "token")
	if err != nil {
		return nil, err
	}
	amount, err := amountParam(params, "amount")
	if err != nil {
		return nil, err
	}
	to, err := stringParam(params, "to")
	if err != nil {
		return nil, err
	}
	interval, err := int64Param(params, "intervalSeconds", true)
	if err != nil {
		return nil, err
	}
	endTime, err := int64Param(params, "endTime", false)
	if err != nil {
		return nil, err
	}
	firstDue, err := int64Param(params, "firstDueTime", false)
	if err != nil {
		return nil, err
	}

	return e.scheduler.ScheduleRecurring(ctx, token, amount, to, interval, endTime, firstDue)
}

// scheduleCall runs one of the scheduler's id-addressed operations. The id
// accepts a decimal string or a number, matching the shapes the schedule
// results report.
func (e *Engine) scheduleCall(ctx context.Context, params map[string]interface{}, fn func(context.Context, *big.Int) (string, error)) (interface{}, error) {
	idStr := optionalStringParam(params, "scheduleId")
	if idStr == "" {
		if n, err := int64Param(params, "scheduleId", false); err == nil && n > 0 {
			idStr = fmt.Sprintf("%d", n)
		}
	}
	if idStr == "" {
		return nil, models.NewValidationError("scheduleId", "is required")
	}
	id, ok := new(big.Int).SetString(idStr, 10)
	if !ok {
		return nil, models.NewValidationError("scheduleId", fmt.Sprintf("%q is not a number", idStr))
	}

	hash, err := fn(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]string{"scheduleId": idStr, "hash": hash}, nil
}

func (e *Engine) requestFaucet(ctx context.Context) (interface{}, error) {
	if e.faucet == nil {
		return nil, fmt.Errorf("no faucet endpoint configured")
	}
	return e.faucet.Request(ctx, e.signer.Address())
}

func (e *Engine) setFeeTokenAction(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	ref, err := stringParam(params, "token")
	if err != nil {
		return nil, err
	}

	// A local preference only; nothing is written on chain.
	token, err := e.resolver.Resolve(ctx, e.signer.Address(), ref)
	if err != nil {
		return nil, err
	}
	e.setFeeToken(ctx, token)
	e.logger.InfoWith(logger.Engine, "Fee token preference set to %s", token.Symbol)

	return map[string]string{"feeToken": token.Symbol, "address": token.Address.Hex()}, nil
}

func (e *Engine) swap(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	inRef, err := stringParam(params, "tokenIn")
	if err != nil {
		return nil, err
	}
	outRef, err := stringParam(params, "tokenOut")
	if err != nil {
		return nil, err
	}
	amountStr, err := amountParam(params, "amountIn")
	if err != nil {
		return nil, err
	}
	slippageBps, err := int64Param(params, "slippageBps", false)
	if err != nil {
		return nil, err
	}
	if _, set := params["slippageBps"]; !set {
		slippageBps = exchange.DefaultSlippageBps
	}

	owner := e.signer.Address()
	tokenIn, err := e.resolver.Resolve(ctx, owner, inRef)
	if err != nil {
		return nil, err
	}
	tokenOut, err := e.resolver.Resolve(ctx, owner, outRef)
	if err != nil {
		return nil, err
	}

	amountIn, err := tokens.ParseAmount(amountStr, tokenIn.Decimals)
	if err != nil {
		return nil, models.NewValidationError("amountIn", err.Error())
	}
	if amountIn.Sign() <= 0 {
		return nil, models.NewValidationError("amountIn", "must be positive")
	}

	return e.exchange.Swap(ctx, tokenIn, tokenOut, amountIn, slippageBps)
}

func (e *Engine) placeLimitOrder(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	ref, err := stringParam(params, "token")
	if err != nil {
		return nil, err
	}
	amountStr, err := amountParam(params, "amount")
	if err != nil {
		return nil, err
	}
	isBid, err := boolParam(params, "isBid")
	if err != nil {
		return nil, err
	}
	price, err := floatParam(params, "price")
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, models.NewValidationError("price", "must be positive")
	}

	token, err := e.resolver.Resolve(ctx, e.signer.Address(), ref)
	if err != nil {
		return nil, err
	}
	amount, err := tokens.ParseAmount(amountStr, token.Decimals)
	if err != nil {
		return nil, models.NewValidationError("amount", err.Error())
	}
	if amount.Sign() <= 0 {
		return nil, models.NewValidationError("amount", "must be positive")
	}

	order, err := e.exchange.PlaceLimitOrder(ctx, token, amount, isBid, price)
	if err != nil {
		return nil, err
	}

	// Recorded even with an empty id so the order can be re-resolved later
	// from the stored hash.
	if e.orderIndex != nil {
		if err := e.orderIndex.Record(ctx, e.signer.Address(), order); err != nil {
			e.logger.ErrorWith(logger.Engine, "Failed to record order %s: %v", order.TxHash, err)
		}
	}
	return order, nil
}

func (e *Engine) cancelOrder(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	idStr := optionalStringParam(params, "orderId")
	if idStr == "" {
		if n, err := int64Param(params, "orderId", false); err == nil && n > 0 {
			idStr = fmt.Sprintf("%d", n)
		}
	}

	if idStr == "" {
		ref := optionalStringParam(params, "orderRef")
		if ref == "" {
			return nil, models.NewValidationError("orderId", "orderId or orderRef is required")
		}
		if e.orderIndex == nil {
			return nil, fmt.Errorf("no order index configured to resolve %q", ref)
		}
		resolved, err := e.orderIndex.ResolveRef(ctx, e.signer.Address(), ref)
		if err != nil {
			return nil, err
		}
		idStr = resolved
	}

	id, ok := new(big.Int).SetString(idStr, 10)
	if !ok {
		return nil, models.NewValidationError("orderId", fmt.Sprintf("%q is not a number", idStr))
	}

	hash, err := e.exchange.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	if e.orderIndex != nil {
		if err := e.orderIndex.MarkCancelled(ctx, e.signer.Address(), idStr); err != nil {
			e.logger.ErrorWith(logger.Engine, "Failed to flag order %s cancelled: %v", idStr, err)
		}
	}
	return map[string]string{"orderId": idStr, "hash": hash}, nil
}

func (e *Engine) openOrders(ctx context.Context) (interface{}, error) {
	if e.orderIndex == nil {
		return nil, fmt.Errorf("no order index configured")
	}
	return e.orderIndex.List(ctx, e.signer.Address())
}

func (e *Engine) deployToken(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, err := stringParam(params, "name")
	if err != nil {
		return nil, err
	}
	symbol, err := stringParam(params, "symbol")
	if err != nil {
		return nil, err
	}

	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %v", err)
	}

	admin := e.signer.Address()
	quote := e.registry.PathUSD()
	data, err := contracts.FactoryABI.Pack("createToken", name, symbol, "USD", quote.Address, admin, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createToken call: %v", err)
	}

	hash, err := e.signer.SendTransaction(ctx, chain.TxCall{To: contracts.FactoryAddress, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to submit token deployment: %v", err)
	}

	receipt, err := chain.WaitMined(ctx, e.backend, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == 0 {
		return nil, fmt.Errorf("token deployment %s reverted", hash.Hex())
	}

	event := contracts.FactoryABI.Events["TokenCreated"]
	var tokenAddr common.Address
	found := false
	for _, l := range receipt.Logs {
		if len(l.Topics) < 2 || l.Topics[0] != event.ID {
			continue
		}
		tokenAddr = common.BytesToAddress(l.Topics[1].Bytes())
		found = true
		break
	}
	if !found {
		return nil, fmt.Errorf("token creation event missing from receipt %s", hash.Hex())
	}

	deployed := tokens.Token{Symbol: symbol, Name: name, Address: tokenAddr, Decimals: tokens.DefaultDecimals}
	if err := e.resolver.Remember(ctx, admin, deployed); err != nil {
		e.logger.ErrorWith(logger.Engine, "Failed to cache deployed token %s: %v", symbol, err)
	}

	e.logger.NoticeWith(logger.Engine, "Deployed token %s (%s) at %s", name, symbol, tokenAddr.Hex())
	return &models.DeployTokenResult{
		TokenAddress: tokenAddr.Hex(),
		Name:         name,
		Symbol:       symbol,
		Hash:         hash.Hex(),
	}, nil
}

func (e *Engine) createPair(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	ref, err := stringParam(params, "token")
	if err != nil {
		return nil, err
	}

	token, err := e.resolver.Resolve(ctx, e.signer.Address(), ref)
	if err != nil {
		return nil, err
	}
	return e.exchange.CreatePair(ctx, token)
}

func (e *Engine) mintToken(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	ref, err := stringParam(params, "token")
	if err != nil {
		return nil, err
	}
	amountStr, err := amountParam(params, "amount")
	if err != nil {
		return nil, err
	}

	owner := e.signer.Address()
	recipient := owner
	if to := optionalStringParam(params, "recipient"); to != "" {
		if !common.IsHexAddress(to) {
			return nil, models.NewValidationError("recipient", fmt.Sprintf("%q is not an address", to))
		}
		recipient = common.HexToAddress(to)
	}

	token, err := e.resolver.Resolve(ctx, owner, ref)
	if err != nil {
		return nil, err
	}
	amount, err := tokens.ParseAmount(amountStr, token.Decimals)
	if err != nil {
		return nil, models.NewValidationError("amount", err.Error())
	}
	if amount.Sign() <= 0 {
		return nil, models.NewValidationError("amount", "must be positive")
	}

	// Minting needs the issuer role. The token admin can grant it to
	// itself, so probe and self-grant before the mint when it is missing.
	out, err := chain.Call(ctx, e.backend, token.Address, contracts.ERC20ABI, "hasRole", contracts.IssuerRole, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to check issuer role: %v", err)
	}
	hasRole, _ := out[0].(bool)

	if !hasRole {
		data, err := contracts.ERC20ABI.Pack("grantRole", contracts.IssuerRole, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to pack grantRole call: %v", err)
		}
		grantHash, err := e.signer.SendTransaction(ctx, chain.TxCall{To: token.Address, Data: data})
		if err != nil {
			return nil, fmt.Errorf("failed to submit grantRole: %v", err)
		}
		receipt, err := chain.WaitMined(ctx, e.backend, grantHash)
		if err != nil {
			return nil, err
		}
		if receipt.Status == 0 {
			return nil, fmt.Errorf("grantRole transaction %s reverted", grantHash.Hex())
		}
		e.logger.InfoWith(logger.Engine, "Granted issuer role on %s to %s", token.Symbol, owner.Hex())
	}

	data, err := contracts.ERC20ABI.Pack("mint", recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack mint call: %v", err)
	}
	hash, err := e.signer.SendTransaction(ctx, chain.TxCall{To: token.Address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to submit mint: %v", err)
	}
	receipt, err := chain.WaitMined(ctx, e.backend, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == 0 {
		return nil, fmt.Errorf("mint transaction %s reverted", hash.Hex())
	}

	e.logger.NoticeWith(logger.Engine, "Minted %s %s to %s", amountStr, token.Symbol, recipient.Hex())
	return map[string]string{
		"token":     token.Symbol,
		"amount":    amountStr,
		"recipient": recipient.Hex(),
		"hash":      hash.Hex(),
	}, nil
}

func (e *Engine) provideLiquidity(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	ref, err := stringParam(params, "token")
	if err != nil {
		return nil, err
	}
	amountTokenStr, err := amountParam(params, "amountToken")
	if err != nil {
		return nil, err
	}
	amountQuoteStr, err := amountParam(params, "amountQuote")
	if err != nil {
		return nil, err
	}

	token, err := e.resolver.Resolve(ctx, e.signer.Address(), ref)
	if err != nil {
		return nil, err
	}

	amountToken, err := tokens.ParseAmount(amountTokenStr, token.Decimals)
	if err != nil {
		return nil, models.NewValidationError("amountToken", err.Error())
	}
	if amountToken.Sign() <= 0 {
		return nil, models.NewValidationError("amountToken", "must be positive")
	}

	// The quote leg is validated but both orders are sized by the token
	// amount; the bid's quote spend follows from its price.
	quote := e.registry.PathUSD()
	amountQuote, err := tokens.ParseAmount(amountQuoteStr, quote.Decimals)
	if err != nil {
		return nil, models.NewValidationError("amountQuote", err.Error())
	}
	if amountQuote.Sign() <= 0 {
		return nil, models.NewValidationError("amountQuote", "must be positive")
	}

	return e.exchange.ProvideLiquidity(ctx, token, amountToken)
}

func (e *Engine) trackToken(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	addrStr, err := stringParam(params, "address")
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(addrStr) {
		return nil, models.NewValidationError("address", fmt.Sprintf("%q is not an address", addrStr))
	}
	addr := common.HexToAddress(addrStr)

	symbol := optionalStringParam(params, "symbol")
	name := optionalStringParam(params, "name")
	decimals, err := int64Param(params, "decimals", false)
	if err != nil {
		return nil, err
	}

	if symbol == "" || decimals == 0 {
		chainSymbol, chainDecimals, err := e.resolver.ReadMetadata(ctx, addr)
		if err != nil {
			e.logger.DebugWith(logger.Engine, "Metadata read for %s failed, using defaults: %v", addr.Hex(), err)
		} else {
			if symbol == "" {
				symbol = chainSymbol
			}
			if decimals == 0 {
				decimals = int64(chainDecimals)
			}
		}
	}
	if symbol == "" {
		symbol = "TOKEN"
	}
	if name == "" {
		name = symbol
	}
	if decimals <= 0 || decimals > 255 {
		decimals = int64(tokens.DefaultDecimals)
	}

	tracked := tokens.Token{Symbol: symbol, Name: name, Address: addr, Decimals: uint8(decimals)}
	if err := e.resolver.Remember(ctx, e.signer.Address(), tracked); err != nil {
		return nil, fmt.Errorf("failed to persist tracked token: %v", err)
	}

	return &models.TrackedToken{
		Tracked:  true,
		Address:  addr.Hex(),
		Symbol:   symbol,
		Name:     name,
		Decimals: uint8(decimals),
	}, nil
}

// executeAtParam accepts a unix timestamp or an ISO 8601 string. A string
// without an explicit zone is treated as UTC.
func executeAtParam(params map[string]interface{}) (int64, error) {
	v, ok := params["executeAt"]
	if !ok || v == nil {
		return 0, models.NewValidationError("executeAt", "is required")
	}

	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.Unix(), nil
		}
		if parsed, err := time.Parse("2006-01-02T15:04:05", t); err == nil {
			return parsed.UTC().Unix(), nil
		}
		return 0, models.NewValidationError("executeAt", fmt.Sprintf("%q is not a timestamp", t))
	default:
		return 0, models.NewValidationError("executeAt", fmt.Sprintf("unsupported type %T", v))
	}
}
