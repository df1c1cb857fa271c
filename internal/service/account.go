package service

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/model"
	"github.com/vammperp/backend/internal/pkg/errors"
	"github.com/vammperp/backend/internal/repository"
)

// AccountService serves the private views of one trader.
type AccountService struct {
	engine          *engine.Engine
	positionRepo    *repository.PositionRepository
	orderRepo       *repository.OrderRepository
	tradeRepo       *repository.TradeRepository
	liquidationRepo *repository.LiquidationRepository
}

func NewAccountService(
	eng *engine.Engine,
	positionRepo *repository.PositionRepository,
	orderRepo *repository.OrderRepository,
	tradeRepo *repository.TradeRepository,
	liquidationRepo *repository.LiquidationRepository,
) *AccountService {
	return &AccountService{
		engine:          eng,
		positionRepo:    positionRepo,
		orderRepo:       orderRepo,
		tradeRepo:       tradeRepo,
		liquidationRepo: liquidationRepo,
	}
}

// PositionView is an open position with its health at the current mark.
// Health is nil while the oracle price is unusable.
type PositionView struct {
	engine.Position
	Health *engine.PositionHealth `json:"health,omitempty"`
}

// GetAccounts returns the margin accounts of owner, one per market at most.
// An empty market filters nothing.
func (s *AccountService) GetAccounts(owner common.Address, market string) ([]engine.MarginAccount, error) {
	var out []engine.MarginAccount
	for _, symbol := range s.symbols(market) {
		a, err := s.engine.Account(symbol, owner)
		if errors.Is(err, errors.ErrMarginAccountNotFound) || errors.Is(err, errors.ErrMarketNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *AccountService) GetPositions(owner common.Address, market string) ([]PositionView, error) {
	var out []PositionView
	for _, symbol := range s.symbols(market) {
		positions, err := s.engine.AccountPositions(symbol, owner)
		if errors.Is(err, errors.ErrMarginAccountNotFound) || errors.Is(err, errors.ErrMarketNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, p := range positions {
			view := PositionView{Position: p}
			if h, err := s.engine.PositionHealth(symbol, p.ID); err == nil {
				view.Health = &h
			}
			out = append(out, view)
		}
	}
	return out, nil
}

// GetPosition returns a position of owner, open or settled.
func (s *AccountService) GetPosition(owner common.Address, market, id string) (*PositionView, error) {
	p, err := s.engine.Position(market, id)
	if err != nil {
		return nil, err
	}
	if p.Trader != owner {
		return nil, errors.ErrPositionNotFound
	}
	view := &PositionView{Position: p}
	if p.IsOpen() {
		if h, err := s.engine.PositionHealth(market, id); err == nil {
			view.Health = &h
		}
	}
	return view, nil
}

func (s *AccountService) GetPendingOrders(owner common.Address, market string) ([]engine.Order, error) {
	var out []engine.Order
	for _, symbol := range s.symbols(market) {
		orders, err := s.engine.AccountOrders(symbol, owner)
		if errors.Is(err, errors.ErrMarginAccountNotFound) || errors.Is(err, errors.ErrMarketNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, orders...)
	}
	return out, nil
}

func (s *AccountService) GetOrder(owner common.Address, market, id string) (*engine.Order, error) {
	o, err := s.engine.Order(market, id)
	if err != nil {
		return nil, err
	}
	if o.Trader != owner {
		return nil, errors.ErrOrderNotFound
	}
	return &o, nil
}

func (s *AccountService) GetPositionHistory(owner common.Address, market, status string, limit int) ([]model.Position, error) {
	return s.positionRepo.GetByTrader(owner.Hex(), market, status, clampLimit(limit))
}

func (s *AccountService) GetOrderHistory(owner common.Address, market string, after, before int64, limit int) ([]model.Order, error) {
	return s.orderRepo.GetHistoryByTrader(owner.Hex(), market, after, before, clampLimit(limit))
}

func (s *AccountService) GetTradeHistory(owner common.Address, market string, after, before int64, limit int) ([]model.Trade, error) {
	return s.tradeRepo.GetByTrader(owner.Hex(), market, after, before, clampLimit(limit))
}

func (s *AccountService) GetLiquidationHistory(owner common.Address, market string, after, before int64, limit int) ([]model.Liquidation, error) {
	return s.liquidationRepo.GetByTrader(owner.Hex(), market, after, before, clampLimit(limit))
}

func (s *AccountService) symbols(market string) []string {
	if market != "" {
		return []string{market}
	}
	return s.engine.Symbols()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}
