package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/pkg/errors"
)

// Engine applies intents to per-market state. Intents on the same market are
// serialized by that market's lock; different markets never contend.
type Engine struct {
	mu     sync.RWMutex
	books  map[string]*book
	policy Policy
	clock  func() time.Time
	logger *zap.Logger
}

// book is the full state of one market.
type book struct {
	mu        sync.Mutex
	market    Market
	oracle    *Oracle
	accounts  map[common.Address]*MarginAccount
	positions map[string]*Position
	orders    map[string]*Order
}

func newBook() *book {
	return &book{
		accounts:  make(map[common.Address]*MarginAccount),
		positions: make(map[string]*Position),
		orders:    make(map[string]*Order),
	}
}

type Option func(*Engine)

// WithClock overrides the time source used for funding and oracle checks.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func New(policy Policy, opts ...Option) *Engine {
	e := &Engine{
		books:  make(map[string]*book),
		policy: policy,
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) now() int64 {
	return e.clock().Unix()
}

// Receipt is the result of a committed intent: the emitted events plus the
// committed state of every entity the intent touched.
type Receipt struct {
	Intent    string          `json:"intent"`
	Market    Market          `json:"market"`
	Oracle    *Oracle         `json:"oracle,omitempty"`
	Accounts  []MarginAccount `json:"accounts,omitempty"`
	Positions []Position      `json:"positions,omitempty"`
	Orders    []Order         `json:"orders,omitempty"`
	Events    []Event         `json:"events"`
}

// Apply runs intent as one atomic transition. On error nothing is committed
// and no events are produced.
func (e *Engine) Apply(ctx context.Context, intent Intent) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, errors.ErrInvalidParameter
	}

	if init, ok := intent.(InitializeMarket); ok {
		return e.applyInitializeMarket(init)
	}

	b, err := e.book(intent.MarketSymbol())
	if err != nil {
		e.reject(intent, err)
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := newTx(b, e.now())
	if err := e.dispatch(t, intent); err != nil {
		e.reject(intent, err)
		return nil, err
	}
	receipt := t.commit(intent.Name())
	e.logger.Debug("intent applied",
		zap.String("intent", intent.Name()),
		zap.String("market", intent.MarketSymbol()),
		zap.Int("events", len(receipt.Events)),
	)
	return receipt, nil
}

func (e *Engine) applyInitializeMarket(intent InitializeMarket) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.books[intent.Market]; ok {
		e.reject(intent, errors.ErrMarketAlreadyExists)
		return nil, errors.ErrMarketAlreadyExists
	}
	b := newBook()
	t := newTx(b, e.now())
	if err := e.initializeMarket(t, intent); err != nil {
		e.reject(intent, err)
		return nil, err
	}
	receipt := t.commit(intent.Name())
	e.books[intent.Market] = b
	e.logger.Info("market initialized",
		zap.String("market", intent.Market),
		zap.String("pricing", intent.Pricing.String()),
		zap.Uint64("price", b.market.AMM.LastPrice),
	)
	return receipt, nil
}

func (e *Engine) reject(intent Intent, err error) {
	e.logger.Info("intent rejected",
		zap.String("intent", intent.Name()),
		zap.String("market", intent.MarketSymbol()),
		zap.Error(err),
	)
}

func (e *Engine) dispatch(t *tx, intent Intent) error {
	switch in := intent.(type) {
	case PauseMarket:
		return e.setMarketActive(t, in.Authority, false)
	case ResumeMarket:
		return e.setMarketActive(t, in.Authority, true)
	case UpdateMarketParams:
		return e.updateMarketParams(t, in)
	case UpdateFundingRate:
		return e.updateFundingRate(t, in)
	case UpdateFundingPayments:
		return e.updateFundingPayments(t)
	case InitializeOracle:
		return e.initializeOracle(t, in)
	case UpdateOraclePrice:
		return e.updateOraclePrice(t, in)
	case CreateMarginAccount:
		return e.createMarginAccount(t, in)
	case DepositCollateral:
		return e.depositCollateral(t, in)
	case WithdrawCollateral:
		return e.withdrawCollateral(t, in)
	case OpenPosition:
		_, err := e.openPosition(t, in.Trader, in.Side, in.Size, in.Leverage, "")
		return err
	case PlaceOrder:
		return e.placeOrder(t, in)
	case FillOrder:
		return e.fillOrder(t, in)
	case CancelOrder:
		return e.cancelOrder(t, in)
	case ClosePosition:
		return e.closePositionIntent(t, in)
	case AdjustPositionMargin:
		return e.adjustPositionMargin(t, in)
	case LiquidatePosition:
		return e.liquidatePosition(t, in)
	}
	return errors.ErrInvalidParameter
}

func (e *Engine) book(symbol string) (*book, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.books[symbol]
	if !ok {
		return nil, errors.ErrMarketNotFound
	}
	return b, nil
}

// Symbols returns the initialized market symbols in order.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
