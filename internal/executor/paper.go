package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// PaperBook is the shared simulated account backing every paper gateway in a
// dry run. It satisfies domain.BalanceOracle so the circuit breaker sees the
// rehearsal balance move exactly as a live one would.
type PaperBook struct {
	mu   sync.Mutex
	cash float64
}

func NewPaperBook(initialCapital float64) *PaperBook {
	return &PaperBook{cash: initialCapital}
}

var _ domain.BalanceOracle = (*PaperBook)(nil)

// Balance returns the simulated cash balance.
func (b *PaperBook) Balance(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash, nil
}

func (b *PaperBook) apply(delta float64) {
	b.mu.Lock()
	b.cash += delta
	b.mu.Unlock()
}

// PaperGateway simulates fills for one venue without touching it. Buys debit
// the shared book, sells credit it; realized slippage is accounted in the
// coordinator's execution record.
type PaperGateway struct {
	venue  domain.Venue
	book   *PaperBook
	logger *slog.Logger
}

var _ domain.OrderGateway = (*PaperGateway)(nil)

func NewPaperGateway(venue domain.Venue, book *PaperBook, logger *slog.Logger) *PaperGateway {
	return &PaperGateway{
		venue:  venue,
		book:   book,
		logger: logger.With(slog.String("component", "paper_gateway"), slog.String("venue", string(venue))),
	}
}

func (g *PaperGateway) Venue() domain.Venue { return g.venue }

// SubmitOrder fills every well-formed order at its requested price.
func (g *PaperGateway) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	if req.SizeUSD <= 0 || req.Price <= 0 {
		return domain.FillResult{}, domain.ErrInvalidOrder
	}

	if req.Side == domain.SideBuy {
		g.book.apply(-req.SizeUSD)
	} else {
		g.book.apply(req.SizeUSD)
	}

	g.logger.Debug("paper fill",
		slog.String("market", req.MarketID),
		slog.String("side", string(req.Side)),
		slog.Float64("price", req.Price),
		slog.Float64("size_usd", req.SizeUSD))

	return domain.FillResult{
		OrderID:   "paper-" + uuid.NewString(),
		Filled:    true,
		FillPrice: req.Price,
		FilledUSD: req.SizeUSD,
		FilledAt:  time.Now().UTC(),
	}, nil
}
