package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"SignalFlow/internal/domain/models"
	drepo "SignalFlow/internal/domain/repository"

	"github.com/google/uuid"
)

// Paper fills every order immediately at the last price it was told about.
type Paper struct {
	mu     sync.RWMutex
	prices map[string]float64
	orders []PaperOrder
}

// PaperOrder records a simulated fill.
type PaperOrder struct {
	ID       string
	Symbol   string
	Side     models.OrderSide
	Quantity float64
	Price    float64
}

func NewPaper() *Paper {
	return &Paper{prices: make(map[string]float64)}
}

var _ drepo.Exchange = (*Paper)(nil)

// SetPrice updates the fill price for symbol.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	p.prices[strings.ToUpper(symbol)] = price
	p.mu.Unlock()
}

func (p *Paper) Submit(ctx context.Context, symbol string, side models.OrderSide, quantity float64) (*models.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %v", models.ErrOrderRejected, quantity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	o := PaperOrder{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    p.prices[strings.ToUpper(symbol)],
	}
	p.orders = append(p.orders, o)
	return &models.OrderAck{OrderID: o.ID, Status: "FILLED", Filled: quantity, AvgPrice: o.Price}, nil
}

// Orders returns a copy of all simulated fills.
func (p *Paper) Orders() []PaperOrder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PaperOrder(nil), p.orders...)
}
