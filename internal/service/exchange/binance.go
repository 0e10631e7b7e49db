package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"SignalFlow/internal/domain/models"
	drepo "SignalFlow/internal/domain/repository"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// BinanceFutures submits market orders to Binance USD-M futures.
type BinanceFutures struct {
	cli *futures.Client
}

// NewBinanceFutures creates an exchange client. testnet switches the
// package-wide base URL, so it must be decided once at startup.
func NewBinanceFutures(apiKey, apiSecret string, testnet bool) drepo.Exchange {
	futures.UseTestnet = testnet
	return &BinanceFutures{cli: futures.NewClient(apiKey, apiSecret)}
}

func (b *BinanceFutures) Submit(ctx context.Context, symbol string, side models.OrderSide, quantity float64) (*models.OrderAck, error) {
	resp, err := b.cli.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(decimal.NewFromFloat(quantity).String()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: code=%d %s", models.ErrOrderRejected, apiErr.Code, apiErr.Message)
		}
		return nil, fmt.Errorf("binance submit %s: %w", symbol, err)
	}

	filled, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	avg, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	return &models.OrderAck{
		OrderID:  strconv.FormatInt(resp.OrderID, 10),
		Status:   string(resp.Status),
		Filled:   filled,
		AvgPrice: avg,
	}, nil
}
