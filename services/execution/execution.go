// Package execution defines the order-execution capability the core
// consumes, plus the simulated broker used for backtests. Real broker
// transports live outside this repository.
package execution

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"meanrev-bot/services/market"
)

// OrderRequest describes an entry order with its protective levels.
type OrderRequest struct {
	Symbol     string
	Side       market.Side
	Size       decimal.Decimal
	Price      decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// Executor is the abstract order-execution capability. The core calls
// it only at position open and at stop/trailing adjustments.
type Executor interface {
	PlaceOrder(req OrderRequest) (orderID string, err error)
	ModifyOrder(orderID string, stopLoss, takeProfit decimal.Decimal) error
}

// ErrOrderRejected signals the venue refused the order.
var ErrOrderRejected = errors.New("order rejected")

// PlacedOrder is the simulator's record of an accepted order.
type PlacedOrder struct {
	ID         string
	Request    OrderRequest
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// Simulator accepts every order unless told to fail. Backtests use it
// as the execution venue; tests use failure injection to exercise
// rollback paths.
type Simulator struct {
	orders   map[string]*PlacedOrder
	sequence []string
	failNext int
}

func NewSimulator() *Simulator {
	return &Simulator{orders: make(map[string]*PlacedOrder)}
}

// FailNext makes the next n calls fail with ErrOrderRejected.
func (s *Simulator) FailNext(n int) { s.failNext = n }

// Orders returns accepted orders in placement order.
func (s *Simulator) Orders() []*PlacedOrder {
	out := make([]*PlacedOrder, 0, len(s.sequence))
	for _, id := range s.sequence {
		out = append(out, s.orders[id])
	}
	return out
}

func (s *Simulator) PlaceOrder(req OrderRequest) (string, error) {
	if s.failNext > 0 {
		s.failNext--
		return "", ErrOrderRejected
	}
	id := uuid.New().String()
	s.orders[id] = &PlacedOrder{ID: id, Request: req, StopLoss: req.StopLoss, TakeProfit: req.TakeProfit}
	s.sequence = append(s.sequence, id)
	return id, nil
}

func (s *Simulator) ModifyOrder(orderID string, stopLoss, takeProfit decimal.Decimal) error {
	if s.failNext > 0 {
		s.failNext--
		return ErrOrderRejected
	}
	o, ok := s.orders[orderID]
	if !ok {
		return errors.New("unknown order " + orderID)
	}
	o.StopLoss = stopLoss
	o.TakeProfit = takeProfit
	return nil
}
