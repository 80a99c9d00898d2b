package quoter

import (
	"context"
	"math/big"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/swap-router/internal/domain"
	"github.com/hxuan190/swap-router/internal/metrics"
)

// QuoteRequest is one (path, fraction) pair to be quoted.
type QuoteRequest struct {
	Path     *domain.Path
	Fraction domain.TradeFraction
}

// QuoteBatch is the provider result. Quotes is aligned with the requests;
// a nil entry means the pair has no quote.
type QuoteBatch struct {
	Requests                    []QuoteRequest
	Quotes                      []*domain.PathQuote
	BlockNumber                 uint64
	ApproxGasUsedPerSuccessCall uint64
	Attempts                    int
}

// Valid returns the populated quotes in request order.
func (b *QuoteBatch) Valid() []*domain.PathQuote {
	out := make([]*domain.PathQuote, 0, len(b.Quotes))
	for _, q := range b.Quotes {
		if q != nil {
			out = append(out, q)
		}
	}
	return out
}

// OnChainQuoteProvider quotes paths by simulating quoter contract calls
// through the batch executor.
type OnChainQuoteProvider struct {
	codec    *QuoteCodec
	executor *Executor
	logger   zerolog.Logger
}

func NewOnChainQuoteProvider(codec *QuoteCodec, executor *Executor) *OnChainQuoteProvider {
	return &OnChainQuoteProvider{
		codec:    codec,
		executor: executor,
		logger:   log.With().Str("component", "onchain-quote-provider").Logger(),
	}
}

func (p *OnChainQuoteProvider) WithLogger(logger zerolog.Logger) *OnChainQuoteProvider {
	p.logger = logger
	p.executor.WithLogger(logger)
	return p
}

// Supports reports whether path is quotable in the trade direction.
func (p *OnChainQuoteProvider) Supports(path *domain.Path, tradeType domain.TradeType) bool {
	return p.codec.Supports(path, tradeType)
}

// GetQuotes quotes every path at every fraction. Requests are flattened
// path-major: all fractions of paths[0], then paths[1], and so on.
func (p *OnChainQuoteProvider) GetQuotes(
	ctx context.Context,
	paths []*domain.Path,
	fractions []domain.TradeFraction,
	tradeType domain.TradeType,
	params BatchParams,
) (*QuoteBatch, error) {
	requests := make([]QuoteRequest, 0, len(paths)*len(fractions))
	for _, path := range paths {
		for _, f := range fractions {
			requests = append(requests, QuoteRequest{Path: path, Fraction: f})
		}
	}
	return p.GetQuotesFor(ctx, requests, tradeType, params)
}

// GetQuotesFor quotes an explicit list of (path, fraction) pairs.
func (p *OnChainQuoteProvider) GetQuotesFor(
	ctx context.Context,
	requests []QuoteRequest,
	tradeType domain.TradeType,
	params BatchParams,
) (*QuoteBatch, error) {
	calls := make([]Call, len(requests))
	for i, r := range requests {
		call, err := p.codec.EncodeCall(r.Path, tradeType, r.Fraction.Amount)
		if err != nil {
			return nil, err
		}
		calls[i] = call
	}

	outcome, err := p.executor.Execute(ctx, calls, params)
	if err != nil {
		return nil, err
	}

	batch := &QuoteBatch{
		Requests:                    requests,
		Quotes:                      make([]*domain.PathQuote, len(requests)),
		BlockNumber:                 outcome.BlockNumber,
		ApproxGasUsedPerSuccessCall: outcome.ApproxGasUsedPerSuccessCall,
		Attempts:                    outcome.Attempts,
	}

	var decoded, missing, malformed int
	for i, res := range outcome.Results {
		if !res.Valid() {
			missing++
			continue
		}
		r := requests[i]
		q, err := p.codec.Decode(r.Path, tradeType, res.ReturnData)
		if err != nil {
			malformed++
			p.logger.Debug().Err(err).Int("percent", r.Fraction.Percent).Msg("dropping undecodable quote")
			continue
		}
		// A pool with no depth in range quotes zero; no plan can use it.
		if q.Amount == nil || q.Amount.Sign() <= 0 {
			missing++
			continue
		}
		batch.Quotes[i] = &domain.PathQuote{
			Path:                        r.Path,
			Percent:                     r.Fraction.Percent,
			Amount:                      new(big.Int).Set(r.Fraction.Amount),
			Quote:                       q.Amount,
			SqrtPriceX96AfterList:       q.SqrtPriceX96AfterList,
			InitializedTicksCrossedList: q.InitializedTicksCrossedList,
			GasEstimate:                 q.GasEstimate,
		}
		decoded++
	}

	metrics.QuotesDecoded.WithLabelValues("ok").Add(float64(decoded))
	metrics.QuotesDecoded.WithLabelValues("no_quote").Add(float64(missing))
	metrics.QuotesDecoded.WithLabelValues("malformed").Add(float64(malformed))

	p.logger.Debug().
		Int("requests", len(requests)).
		Int("quotes", decoded).
		Int("attempts", outcome.Attempts).
		Uint64("block", outcome.BlockNumber).
		Uint64("p99_call_gas", outcome.ApproxGasUsedPerSuccessCall).
		Msg("quotes fetched")
	return batch, nil
}
