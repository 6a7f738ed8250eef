package parser

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/wnt/copytrail/internal/constants"
	"github.com/wnt/copytrail/internal/helius"
	"github.com/wnt/copytrail/internal/models"
)

// NewSwapParser creates a parser for converting enhanced transactions into
// canonical trades. stableToSOLRate converts stablecoin flow into a SOL
// magnitude when a swap routes entirely through stablecoins; set it to 0 to
// skip that branch instead of guessing.
func NewSwapParser(stableToSOLRate float64) *SwapParser {
	return &SwapParser{
		stableToSOLRate: stableToSOLRate,
	}
}

// SwapParser converts enhanced transaction records into buy/sell trades.
// It holds no mutable state and is safe for concurrent use.
type SwapParser struct {
	stableToSOLRate float64
}

// Parse extracts zero or more trades for walletAddress from one enhanced
// transaction. Failed transactions yield nothing. Three strategies are tried
// in order until one produces at least one trade. Deterministic for a given
// input; no side effects.
func (p *SwapParser) Parse(tx *helius.EnhancedTransaction, walletAddress string) []models.Trade {
	if tx == nil || tx.TransactionError != nil {
		return nil
	}

	dex := DexLabel(tx)

	trades := p.parseFromTokenTransfers(tx, walletAddress, dex)
	if len(trades) == 0 {
		trades = p.parseFromAccountData(tx, walletAddress, dex)
	}
	if len(trades) == 0 {
		trades = p.parseFromSwapEvent(tx, walletAddress, dex)
	}
	return trades
}

// parseFromTokenTransfers is the primary strategy: it derives the wallet's
// net SOL delta from native transfers and a signed per-mint delta from token
// transfers, then interprets the combination.
func (p *SwapParser) parseFromTokenTransfers(tx *helius.EnhancedTransaction, walletAddress, dex string) []models.Trade {
	solDelta := 0.0
	for _, transfer := range tx.NativeTransfers {
		amount := float64(transfer.Amount) / constants.LamportsPerSOL
		if transfer.FromUserAccount == walletAddress {
			solDelta -= amount
		}
		if transfer.ToUserAccount == walletAddress {
			solDelta += amount
		}
	}

	tokenDeltas := make(map[string]float64)
	for _, transfer := range tx.TokenTransfers {
		if transfer.FromUserAccount == walletAddress {
			tokenDeltas[transfer.Mint] -= transfer.TokenAmount
		}
		if transfer.ToUserAccount == walletAddress {
			tokenDeltas[transfer.Mint] += transfer.TokenAmount
		}
	}

	// Wrapped SOL is SOL. Fold its delta into the SOL side so a wrap/unwrap
	// leg never shows up as a token position.
	for mint, delta := range tokenDeltas {
		if constants.IsSOLMint(mint) {
			solDelta += delta
			delete(tokenDeltas, mint)
		}
	}

	intermediateFlow := 0.0
	targetDeltas := make(map[string]float64)
	for mint, delta := range tokenDeltas {
		if math.Abs(delta) < constants.DustThreshold {
			continue
		}
		if constants.IsIntermediateMint(mint) {
			intermediateFlow += delta
		} else {
			targetDeltas[mint] = delta
		}
	}

	if len(targetDeltas) == 0 {
		return nil
	}

	switch {
	case math.Abs(solDelta) >= constants.MinSOLDelta:
		return p.allocateBySOL(tx, targetDeltas, solDelta, dex)
	case math.Abs(intermediateFlow) >= constants.DustThreshold:
		return p.allocateByIntermediates(tx, targetDeltas, solDelta, intermediateFlow, dex)
	default:
		return p.recordAirdrops(tx, targetDeltas, dex)
	}
}

// allocateBySOL handles the direct SOL-token case: the absolute SOL delta is
// distributed across target mints in proportion to their token deltas.
func (p *SwapParser) allocateBySOL(tx *helius.EnhancedTransaction, targetDeltas map[string]float64, solDelta float64, dex string) []models.Trade {
	totalAbs := 0.0
	for _, delta := range targetDeltas {
		totalAbs += math.Abs(delta)
	}
	if totalAbs == 0 {
		return nil
	}

	var trades []models.Trade
	for _, mint := range sortedMints(targetDeltas) {
		delta := targetDeltas[mint]
		solShare := math.Abs(solDelta) * math.Abs(delta) / totalAbs

		// Spent SOL and received tokens is a buy; received SOL and sent
		// tokens is a sell. Same-sign combinations are not swaps.
		switch {
		case delta > 0 && solDelta < 0:
			trades = append(trades, newTrade(tx, models.TradeSideBuy, mint, delta, solShare, dex))
		case delta < 0 && solDelta > 0:
			trades = append(trades, newTrade(tx, models.TradeSideSell, mint, -delta, solShare, dex))
		}
	}
	return trades
}

// allocateByIntermediates handles multi-hop swaps where the SOL delta is
// negligible and the value moved through stablecoins or LSTs instead.
func (p *SwapParser) allocateByIntermediates(tx *helius.EnhancedTransaction, targetDeltas map[string]float64, solDelta, intermediateFlow float64, dex string) []models.Trade {
	if p.stableToSOLRate <= 0 {
		return nil
	}

	proxy := math.Abs(intermediateFlow)
	solValue := math.Abs(solDelta)
	if solValue < constants.DustThreshold {
		solValue = proxy * p.stableToSOLRate
	}

	totalAbs := 0.0
	for _, delta := range targetDeltas {
		totalAbs += math.Abs(delta)
	}
	if totalAbs == 0 {
		return nil
	}

	// Intermediates leaving the wallet paid for incoming targets (buy);
	// intermediates arriving were received for outgoing targets (sell).
	side := models.TradeSideBuy
	if intermediateFlow > 0 {
		side = models.TradeSideSell
	}

	var trades []models.Trade
	for _, mint := range sortedMints(targetDeltas) {
		delta := targetDeltas[mint]
		if side == models.TradeSideBuy && delta <= 0 {
			continue
		}
		if side == models.TradeSideSell && delta >= 0 {
			continue
		}
		solShare := solValue * math.Abs(delta) / totalAbs
		trades = append(trades, newTrade(tx, side, mint, math.Abs(delta), solShare, dex))
	}
	return trades
}

// recordAirdrops handles inbound tokens with no SOL and no intermediate
// flow: zero-cost buys.
func (p *SwapParser) recordAirdrops(tx *helius.EnhancedTransaction, targetDeltas map[string]float64, dex string) []models.Trade {
	var trades []models.Trade
	for _, mint := range sortedMints(targetDeltas) {
		delta := targetDeltas[mint]
		if delta <= 0 {
			continue
		}
		trades = append(trades, newTrade(tx, models.TradeSideBuy, mint, delta, 0, dex))
	}
	return trades
}

// parseFromAccountData is the secondary strategy: balance diffs from the
// accountData section, used when the transfer lists are empty or useless.
func (p *SwapParser) parseFromAccountData(tx *helius.EnhancedTransaction, walletAddress, dex string) []models.Trade {
	solDelta := 0.0
	tokenDeltas := make(map[string]float64)

	for _, account := range tx.AccountData {
		if account.Account == walletAddress {
			solDelta += float64(account.NativeBalanceChange) / constants.LamportsPerSOL
		}
		// Token balance changes carry their own owner field; the outer
		// account is the token account, not the wallet.
		for _, change := range account.TokenBalanceChanges {
			if change.UserAccount != walletAddress {
				continue
			}
			if constants.IsSOLMint(change.Mint) {
				continue
			}
			tokenDeltas[change.Mint] += RawTokenAmountToReal(change.RawTokenAmount)
		}
	}

	var trades []models.Trade
	for _, mint := range sortedMints(tokenDeltas) {
		delta := tokenDeltas[mint]
		if math.Abs(delta) < constants.DustThreshold {
			continue
		}
		if constants.IsIntermediateMint(mint) {
			continue
		}
		if delta > 0 {
			trades = append(trades, newTrade(tx, models.TradeSideBuy, mint, delta, math.Abs(solDelta), dex))
		} else {
			trades = append(trades, newTrade(tx, models.TradeSideSell, mint, -delta, math.Max(solDelta, 0), dex))
		}
	}
	return trades
}

// parseFromSwapEvent is the fallback strategy: trust the provider's declared
// swap event when the ledger strategies found nothing.
func (p *SwapParser) parseFromSwapEvent(tx *helius.EnhancedTransaction, walletAddress, dex string) []models.Trade {
	swap := tx.Events.Swap
	if swap == nil {
		return nil
	}

	var trades []models.Trade

	if swap.NativeInput != nil {
		solAmount := lamportStringToSOL(swap.NativeInput.Amount)
		outputs := filterSwapTokens(swap.TokenOutputs)
		total := 0.0
		for _, output := range outputs {
			total += RawTokenAmountToReal(output.RawTokenAmount)
		}
		for _, output := range outputs {
			amount := RawTokenAmountToReal(output.RawTokenAmount)
			if amount < constants.DustThreshold || total == 0 {
				continue
			}
			trades = append(trades, newTrade(tx, models.TradeSideBuy, output.Mint, amount, solAmount*amount/total, dex))
		}
	}

	if swap.NativeOutput != nil {
		solAmount := lamportStringToSOL(swap.NativeOutput.Amount)
		inputs := filterSwapTokens(swap.TokenInputs)
		total := 0.0
		for _, input := range inputs {
			total += RawTokenAmountToReal(input.RawTokenAmount)
		}
		for _, input := range inputs {
			amount := RawTokenAmountToReal(input.RawTokenAmount)
			if amount < constants.DustThreshold || total == 0 {
				continue
			}
			trades = append(trades, newTrade(tx, models.TradeSideSell, input.Mint, amount, solAmount*amount/total, dex))
		}
	}

	return trades
}

// filterSwapTokens drops wrapped SOL and intermediate legs from a swap
// event's token list.
func filterSwapTokens(tokens []helius.TokenSwapInfo) []helius.TokenSwapInfo {
	out := make([]helius.TokenSwapInfo, 0, len(tokens))
	for _, token := range tokens {
		if constants.IsSOLMint(token.Mint) || constants.IsIntermediateMint(token.Mint) {
			continue
		}
		out = append(out, token)
	}
	return out
}

// DexLabel derives a human-readable DEX name from the record's source and
// type fields.
func DexLabel(tx *helius.EnhancedTransaction) string {
	source := strings.TrimSpace(tx.Source)
	if source != "" && !strings.EqualFold(source, "unknown") {
		lower := strings.ToLower(source)
		for _, name := range constants.KnownDEXNames {
			if strings.Contains(lower, strings.ToLower(name)) {
				if display, ok := constants.DisplayNames[name]; ok {
					return display
				}
				return name
			}
		}
		if display, ok := constants.DisplayNames[strings.ToUpper(source)]; ok {
			return display
		}
		return source
	}
	if strings.Contains(strings.ToLower(tx.Type), "swap") {
		return "DEX Swap"
	}
	return "Unknown"
}

// DexFromPrograms derives the DEX from the first known program id in the
// instruction list. Used when only a low-level parsed record is available.
func DexFromPrograms(instructions []helius.Instruction) string {
	for _, instruction := range instructions {
		if name, ok := constants.DEXPrograms[instruction.ProgramId]; ok {
			return name
		}
		for _, inner := range instruction.InnerInstructions {
			if name, ok := constants.DEXPrograms[inner.ProgramId]; ok {
				return name
			}
		}
	}
	return "Unknown"
}

// RawTokenAmountToReal converts a raw string amount scaled by 10^decimals
// into a real token quantity.
func RawTokenAmountToReal(raw helius.RawTokenAmount) float64 {
	value, err := strconv.ParseFloat(raw.TokenAmount, 64)
	if err != nil {
		return 0
	}
	return value / math.Pow10(raw.Decimals)
}

func lamportStringToSOL(amount string) float64 {
	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0
	}
	return value / constants.LamportsPerSOL
}

// newTrade builds a Trade row for one leg of a swap. Price falls out of the
// SOL and token amounts; zero-cost acquisitions get price 0.
func newTrade(tx *helius.EnhancedTransaction, side, mint string, tokenAmount, solAmount float64, dex string) models.Trade {
	price := 0.0
	if tokenAmount > 0 && solAmount > 0 {
		price = solAmount / tokenAmount
	}
	return models.Trade{
		TradeID:       models.MakeTradeID(tx.Signature, side, mint),
		Signature:     tx.Signature,
		Timestamp:     tx.Timestamp,
		Side:          side,
		TokenMint:     mint,
		TokenAmount:   tokenAmount,
		SolAmount:     solAmount,
		PricePerToken: price,
		Dex:           dex,
	}
}

// sortedMints returns map keys in a stable order so output ordering is
// deterministic across runs.
func sortedMints(deltas map[string]float64) []string {
	mints := make([]string, 0, len(deltas))
	for mint := range deltas {
		mints = append(mints, mint)
	}
	sort.Strings(mints)
	return mints
}
