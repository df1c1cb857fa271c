package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/errors"
	"github.com/vammperp/backend/internal/pkg/metrics"
)

// Store persists committed receipts together with the market snapshot taken
// right after the commit.
type Store interface {
	SaveReceipt(ctx context.Context, r *engine.Receipt, snapshot *engine.Snapshot) error
	LoadSnapshots(ctx context.Context) ([]*engine.Snapshot, error)
}

// Publisher fans committed events out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, events []engine.Event)
}

// Custody moves tokens between a trader wallet and the vault of a market.
type Custody interface {
	Deposit(ctx context.Context, market string, owner common.Address, amount uint64) error
	Withdraw(ctx context.Context, market string, owner common.Address, amount uint64) error
}

// EngineService is the only writer of the engine. Every committed receipt is
// persisted, published and counted before the next intent of the same market
// is applied, so storage and subscribers observe commits in sequence order.
// A receipt that cannot be saved stays queued, and the market takes no new
// intents until the queue is written.
type EngineService struct {
	engine     *engine.Engine
	store      Store
	custody    Custody
	publishers []Publisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	saveTries  uint
	saveDelay  time.Duration

	mu      sync.Mutex
	markets map[string]*marketState
}

// marketState serialises the intents of one market.
type marketState struct {
	sync.Mutex
	unsaved []*engine.Receipt // committed but not yet stored
}

func NewEngineService(
	eng *engine.Engine,
	store Store,
	custody Custody,
	m *metrics.Metrics,
	logger *zap.Logger,
	publishers ...Publisher,
) *EngineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngineService{
		engine:     eng,
		store:      store,
		custody:    custody,
		publishers: publishers,
		metrics:    m,
		logger:     logger.Named("engine-service"),
		saveTries:  3,
		saveDelay:  100 * time.Millisecond,
		markets:    make(map[string]*marketState),
	}
}

func (s *EngineService) Engine() *engine.Engine {
	return s.engine
}

// AddPublisher registers p for every later commit. It must be called before
// intents are applied.
func (s *EngineService) AddPublisher(p Publisher) {
	s.publishers = append(s.publishers, p)
}

// Restore loads every stored market snapshot into the engine.
func (s *EngineService) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	snapshots, err := s.store.LoadSnapshots(ctx)
	if err != nil {
		return err
	}
	for _, snap := range snapshots {
		if err := s.engine.Restore(snap); err != nil {
			return errors.WrapWithMessage(errors.CodeSystemError, "restore market "+snap.Market.Symbol, err)
		}
		s.observeMarket(snap.Market.Symbol)
	}
	s.logger.Info("Engine state restored", zap.Int("markets", len(snapshots)))
	return nil
}

// Apply commits intent. Deposits and withdrawals also move tokens through
// custody; the engine and the vault never disagree after Apply returns.
func (s *EngineService) Apply(ctx context.Context, intent engine.Intent) (*engine.Receipt, error) {
	if intent == nil {
		return nil, errors.ErrInvalidParameter
	}
	symbol := intent.MarketSymbol()
	ms := s.market(symbol)
	ms.Lock()
	defer ms.Unlock()

	if err := s.flush(ctx, symbol); err != nil {
		return nil, err
	}

	switch in := intent.(type) {
	case engine.DepositCollateral:
		return s.deposit(ctx, in)
	case engine.WithdrawCollateral:
		return s.withdraw(ctx, in)
	}
	return s.apply(ctx, intent)
}

func (s *EngineService) deposit(ctx context.Context, in engine.DepositCollateral) (*engine.Receipt, error) {
	if s.custody != nil {
		if err := s.custody.Deposit(ctx, in.Market, in.Owner, in.Amount); err != nil {
			s.metrics.RecordCustodyFailure()
			return nil, err
		}
	}

	receipt, err := s.apply(ctx, in)
	if err != nil && s.custody != nil {
		// Return the tokens taken above.
		if rerr := s.custody.Withdraw(context.WithoutCancel(ctx), in.Market, in.Owner, in.Amount); rerr != nil {
			s.metrics.RecordCustodyFailure()
			s.logger.Error("Failed to refund rejected deposit",
				zap.String("market", in.Market),
				zap.String("owner", in.Owner.Hex()),
				zap.Uint64("amount", in.Amount),
				zap.Error(rerr))
		}
	}
	return receipt, err
}

func (s *EngineService) withdraw(ctx context.Context, in engine.WithdrawCollateral) (*engine.Receipt, error) {
	receipt, err := s.apply(ctx, in)
	if err != nil || s.custody == nil {
		return receipt, err
	}

	terr := s.custody.Withdraw(context.WithoutCancel(ctx), in.Market, in.Owner, in.Amount)
	if terr == nil {
		return receipt, nil
	}
	s.metrics.RecordCustodyFailure()

	// The payout failed, so the collateral goes back to the account.
	if _, cerr := s.apply(context.WithoutCancel(ctx), engine.DepositCollateral{
		Market: in.Market,
		Owner:  in.Owner,
		Amount: in.Amount,
		Refund: true,
	}); cerr != nil {
		s.logger.Error("Failed to re-credit withdrawal",
			zap.String("market", in.Market),
			zap.String("owner", in.Owner.Hex()),
			zap.Uint64("amount", in.Amount),
			zap.Error(cerr))
	}
	return nil, terr
}

// apply runs one intent and records the commit. Callers hold the market lock.
func (s *EngineService) apply(ctx context.Context, intent engine.Intent) (*engine.Receipt, error) {
	start := time.Now()
	receipt, err := s.engine.Apply(ctx, intent)
	s.metrics.RecordIntent(intent.Name(), err, time.Since(start))
	if err != nil {
		return nil, err
	}

	symbol := receipt.Market.Symbol
	if s.store != nil {
		ms := s.market(symbol)
		ms.unsaved = append(ms.unsaved, receipt)
		// The engine has committed, so a failed save is not the caller's
		// error. The receipt waits in the queue for the next intent.
		if err := s.flush(ctx, symbol); err != nil {
			s.logger.Error("Failed to persist receipt",
				zap.String("intent", receipt.Intent),
				zap.String("market", symbol),
				zap.Uint64("eventSeq", receipt.Market.EventSeq),
				zap.Int("queued", len(ms.unsaved)),
				zap.Error(err))
		}
	}

	for _, p := range s.publishers {
		p.Publish(ctx, receipt.Events)
	}
	for _, ev := range receipt.Events {
		s.metrics.RecordEvent(symbol, string(ev.Type))
	}
	s.observeMarket(symbol)
	return receipt, nil
}

// flush writes the queued receipts of symbol in commit order. Callers hold
// the market lock.
func (s *EngineService) flush(ctx context.Context, symbol string) error {
	ms := s.market(symbol)
	queue := ms.unsaved
	if len(queue) == 0 {
		return nil
	}
	snap, err := s.engine.Snapshot(symbol)
	if err != nil {
		return err
	}

	for len(queue) > 0 {
		r := queue[0]
		_, err := backoff.Retry(context.WithoutCancel(ctx), func() (struct{}, error) {
			return struct{}{}, s.store.SaveReceipt(context.WithoutCancel(ctx), r, snap)
		},
			backoff.WithBackOff(&backoff.ConstantBackOff{Interval: s.saveDelay}),
			backoff.WithMaxTries(s.saveTries),
		)
		if err != nil {
			ms.unsaved = queue
			return errors.WrapWithMessage(errors.CodeSystemBusy,
				"market "+symbol+" has unsaved commits", err)
		}
		queue = queue[1:]
	}
	ms.unsaved = nil
	return nil
}

func (s *EngineService) observeMarket(symbol string) {
	if s.metrics == nil {
		return
	}
	m, err := s.engine.Market(symbol)
	if err != nil {
		return
	}
	s.metrics.SetMarket(symbol, m.InsuranceFund, m.BadDebt, m.OpenInterestLong, m.OpenInterestShort)
	if mark, err := s.engine.MarkPrice(symbol); err == nil {
		s.metrics.SetMarkPrice(symbol, mark)
	}
}

func (s *EngineService) market(symbol string) *marketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.markets[symbol]
	if !ok {
		ms = &marketState{}
		s.markets[symbol] = ms
	}
	return ms
}
