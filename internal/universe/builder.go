// Package universe assembles the scan inputs: the valuation-filtered target
// candidates and the reference-venue symbol sets.
package universe

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/obscan/internal/domain"
	"github.com/sawpanic/obscan/internal/venues/coingecko"
)

// SymbolSource lists the base symbols a venue trades
type SymbolSource interface {
	FetchSymbols(ctx context.Context) ([]string, error)
}

// CoinSource provides the coin list and valuations
type CoinSource interface {
	FetchCoinList(ctx context.Context) ([]coingecko.Coin, error)
	FetchMarkets(ctx context.Context, ids []string) ([]coingecko.Market, error)
}

// Options bound candidate selection
type Options struct {
	MarketLimit float64 // FDV ceiling in USD
	SampleCap   int     // max symbols sent for valuation
	Seed        int64   // shuffle seed; 0 seeds from the clock
}

// Builder selects target-venue candidates by valuation
type Builder struct {
	target SymbolSource
	coins  CoinSource
	opts   Options
	rng    *rand.Rand
}

func NewBuilder(target SymbolSource, coins CoinSource, opts Options) *Builder {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Builder{target: target, coins: coins, opts: opts, rng: rand.New(rand.NewSource(seed))}
}

// Candidates returns target symbols with a known FDV in (0, MarketLimit).
// Symbols are shuffled and capped before valuation to bound the number of
// valuation calls; the first coin id sharing a symbol is used.
func (b *Builder) Candidates(ctx context.Context) ([]domain.TokenCandidate, error) {
	symbols, err := b.target.FetchSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("target symbols: %w", err)
	}

	coins, err := b.coins.FetchCoinList(ctx)
	if err != nil {
		return nil, fmt.Errorf("coin list: %w", err)
	}
	index := coingecko.SymbolIndex(coins)

	available := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if len(index[sym]) > 0 {
			available = append(available, sym)
		}
	}
	log.Info().Int("target_symbols", len(symbols)).Int("with_valuation_id", len(available)).Msg("target universe")

	b.rng.Shuffle(len(available), func(i, j int) { available[i], available[j] = available[j], available[i] })
	if b.opts.SampleCap > 0 && len(available) > b.opts.SampleCap {
		available = available[:b.opts.SampleCap]
	}

	ids := make([]string, 0, len(available))
	symbolByID := make(map[string]string, len(available))
	for _, sym := range available {
		id := index[sym][0]
		if _, dup := symbolByID[id]; dup {
			continue
		}
		symbolByID[id] = sym
		ids = append(ids, id)
	}

	markets, err := b.coins.FetchMarkets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("valuations: %w", err)
	}

	candidates := make([]domain.TokenCandidate, 0, len(markets))
	for _, m := range markets {
		sym, ok := symbolByID[m.ID]
		if !ok || m.FDV == nil {
			continue
		}
		fdv := *m.FDV
		if fdv <= 0 || fdv >= b.opts.MarketLimit {
			continue
		}
		c := domain.TokenCandidate{
			Symbol:      sym,
			VenueSymbol: sym,
			CoinGeckoID: m.ID,
			FDV:         fdv,
		}
		if m.MarketCap != nil {
			c.MarketCap = *m.MarketCap
		}
		candidates = append(candidates, c)
	}

	log.Info().Int("valued", len(markets)).Int("candidates", len(candidates)).
		Float64("market_limit", b.opts.MarketLimit).Msg("candidates selected")
	return candidates, nil
}

// References are the reference-venue listings used for presence checks
type References struct {
	A domain.SymbolSet // venue whose listing vetoes an alert
	B domain.SymbolSet // venue whose listing is required
}

// LoadReferences fetches both reference listings concurrently. Either
// failing fails the load since presence gates cannot be evaluated.
func LoadReferences(ctx context.Context, a, b SymbolSource) (References, error) {
	var refs References
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		symbols, err := a.FetchSymbols(gctx)
		if err != nil {
			return fmt.Errorf("reference A symbols: %w", err)
		}
		refs.A = domain.NewSymbolSet(symbols...)
		return nil
	})
	g.Go(func() error {
		symbols, err := b.FetchSymbols(gctx)
		if err != nil {
			return fmt.Errorf("reference B symbols: %w", err)
		}
		refs.B = domain.NewSymbolSet(symbols...)
		return nil
	})

	if err := g.Wait(); err != nil {
		return References{}, err
	}
	log.Info().Int("reference_a", refs.A.Len()).Int("reference_b", refs.B.Len()).Msg("reference listings loaded")
	return refs, nil
}
