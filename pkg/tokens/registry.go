// Package tokens resolves token references (symbols or addresses) to
// concrete token metadata, backed by a static registry, a per-owner cache
// and a factory event scan.
package tokens

import (
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sisyphus-fi/tempo-engine/pkg/config"
)

// Token is resolved token metadata.
type Token struct {
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

// DefaultDecimals is assumed for tokens whose decimals cannot be read.
const DefaultDecimals uint8 = 6

// PathUSDAddress is the network's quote stablecoin.
var PathUSDAddress = common.HexToAddress("0x20C0000000000000000000000000000000000000")

// Registry maps well-known symbols and addresses to token metadata.
// Lookups are case-insensitive on symbol.
type Registry struct {
	mu        sync.RWMutex
	bySymbol  map[string]Token
	byAddress map[common.Address]Token
}

// NewRegistry creates a registry pre-populated with the network's built-in
// stablecoins.
func NewRegistry() *Registry {
	r := &Registry{
		bySymbol:  make(map[string]Token),
		byAddress: make(map[common.Address]Token),
	}

	builtins := []Token{
		{Symbol: "pathUSD", Name: "pathUSD", Address: PathUSDAddress, Decimals: 6},
		{Symbol: "AlphaUSD", Name: "Alpha USD", Address: common.HexToAddress("0x20C0000000000000000000000000000000000001"), Decimals: 6},
		{Symbol: "BetaUSD", Name: "Beta USD", Address: common.HexToAddress("0x20C0000000000000000000000000000000000002"), Decimals: 6},
		{Symbol: "ThetaUSD", Name: "Theta USD", Address: common.HexToAddress("0x20C0000000000000000000000000000000000003"), Decimals: 6},
	}
	for _, t := range builtins {
		r.Add(t)
	}
	return r
}

// Add registers a token under its symbol and address, replacing any
// previous entry.
func (r *Registry) Add(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySymbol[strings.ToLower(t.Symbol)] = t
	r.byAddress[t.Address] = t
}

// Merge applies registry override entries on top of the built-ins.
func (r *Registry) Merge(entries []config.RegistryEntry) {
	for _, e := range entries {
		decimals := e.Decimals
		if decimals == 0 {
			decimals = DefaultDecimals
		}
		name := e.Name
		if name == "" {
			name = e.Symbol
		}
		r.Add(Token{
			Symbol:   e.Symbol,
			Name:     name,
			Address:  common.HexToAddress(e.Address),
			Decimals: decimals,
		})
	}
}

// Lookup finds a token by symbol or hex address.
func (r *Registry) Lookup(ref string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.bySymbol[strings.ToLower(ref)]; ok {
		return t, true
	}
	if common.IsHexAddress(ref) {
		if t, ok := r.byAddress[common.HexToAddress(ref)]; ok {
			return t, true
		}
	}
	return Token{}, false
}

// All returns every registered token, ordered by symbol.
func (r *Registry) All() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Token, 0, len(r.bySymbol))
	for _, t := range r.bySymbol {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Symbol < all[j].Symbol })
	return all
}

// PathUSD returns the network's quote stablecoin.
func (r *Registry) PathUSD() Token {
	t, _ := r.Lookup("pathUSD")
	return t
}
