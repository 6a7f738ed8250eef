package constants

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Well-known mint addresses.
const (
	NativeSOLMint  = "So11111111111111111111111111111111111111111"
	WrappedSOLMint = "So11111111111111111111111111111111111111112"

	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	USDSMint = "USDSwr9ApdHk5bvJKMjzff41FfuX8bSxdKcR81vTwcA"
	USD1Mint = "USD1ttGY1N17NEEHLmELoaybftRBUSErhqYiQzvEmuB"

	MSOLMint    = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"
	BSOLMint    = "bSo13r4TkiE4KumL71LsHTPpL2euBYLFx6h9HP3piy1"
	StSOLMint   = "7dHbWXmci3dT8UFYWYZweBLXgycu7Y3iL6trKn1Y7ARj"
	JitoSOLMint = "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn"
)

// SOLMints are the mints treated as SOL itself when computing deltas.
var SOLMints = map[string]bool{
	NativeSOLMint:  true,
	WrappedSOLMint: true,
}

// IntermediateMints are stablecoins and liquid-staking tokens commonly used
// as routing hops. They never appear as the token side of a trade.
var IntermediateMints = map[string]bool{
	NativeSOLMint:  true,
	WrappedSOLMint: true,
	USDCMint:       true,
	USDTMint:       true,
	USDSMint:       true,
	USD1Mint:       true,
	MSOLMint:       true,
	BSOLMint:       true,
	StSOLMint:      true,
	JitoSOLMint:    true,
}

// IsIntermediateMint reports whether a mint is in the intermediate set.
func IsIntermediateMint(mint string) bool {
	return IntermediateMints[mint]
}

// IsSOLMint reports whether a mint represents native or wrapped SOL.
func IsSOLMint(mint string) bool {
	return SOLMints[mint]
}

// Parser thresholds.
const (
	// DustThreshold: token deltas below this absolute size are ignored.
	DustThreshold = 1e-6
	// MinSOLDelta: SOL deltas below this are treated as zero-flow.
	MinSOLDelta = 1e-4
)

// KnownDEXNames are vendor names matched case-insensitively against the
// enhanced transaction source string.
var KnownDEXNames = []string{
	"JUPITER",
	"RAYDIUM",
	"PUMP_FUN",
	"PUMP.FUN",
	"ORCA",
	"METEORA",
	"MOONSHOT",
	"PHOENIX",
	"LIFINITY",
}

// DEXPrograms maps on-chain program ids to DEX labels. Used when only a
// low-level parsed transaction is available and the source string is absent.
var DEXPrograms = map[string]string{
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":  "Jupiter",
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "Raydium",
	"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK": "Raydium",
	"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P":  "Pump.fun",
	"pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA":  "Pump.fun",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":  "Orca",
	"9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP": "Orca",
	"LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo":  "Meteora",
	"Eo7WjKq67rjJQSZxS6z3YkapzY3eMj6Xy8X5EQVn5UaB": "Meteora",
	"MoonCVVNZFSYkqNXP6bxHLPL6QQJiMagDL3qcqUQTrG":  "Moonshot",
	"PhoeNiXZ8ByJGLkxNfZRnkUfjvmuYqLR89jjFHGqdXY":  "Phoenix",
	"EewxydAPCCVuNEyrVN68PuSYdQ7wKn27V9Gjeoi8dy3S": "Lifinity",
	"2wT8Yq49kHgDzXuPxZSaeLaH1qbmGXtEyPy64bL7aD3c": "Lifinity",
}

// DisplayNames maps upper-cased source identifiers to display labels.
var DisplayNames = map[string]string{
	"JUPITER":  "Jupiter",
	"RAYDIUM":  "Raydium",
	"PUMP_FUN": "Pump.fun",
	"PUMP.FUN": "Pump.fun",
	"ORCA":     "Orca",
	"METEORA":  "Meteora",
	"MOONSHOT": "Moonshot",
	"PHOENIX":  "Phoenix",
	"LIFINITY": "Lifinity",
}
