package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"SignalFlow/internal/domain/models"
	drepo "SignalFlow/internal/domain/repository"
	"SignalFlow/pkg/logger"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
)

// BinanceFeed streams klines from the Binance websocket API, one connection
// per subscription.
type BinanceFeed struct {
	baseURL      string
	pingInterval time.Duration
	dialer       *websocket.Dialer
	log          *logger.Logger
}

// NewBinance creates a PriceFeed backed by <baseURL>/<symbol>@kline_<interval>.
func NewBinance(baseURL string, pingInterval time.Duration, log *logger.Logger) drepo.PriceFeed {
	return &BinanceFeed{
		baseURL:      strings.TrimRight(baseURL, "/"),
		pingInterval: pingInterval,
		dialer:       websocket.DefaultDialer,
		log:          log.With(logger.String("component", "binance_feed")),
	}
}

func (f *BinanceFeed) streamURL(key models.SessionKey) string {
	return fmt.Sprintf("%s/%s@kline_%s", f.baseURL, strings.ToLower(key.Symbol), key.Interval)
}

// Subscribe dials the stream. The returned subscription ends with exactly one
// error on Errors() unless closed by the caller.
func (f *BinanceFeed) Subscribe(ctx context.Context, key models.SessionKey) (drepo.Subscription, error) {
	u := f.streamURL(key)
	conn, _, err := f.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("binance connect %s: %w", key, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &wsSubscription{
		key:     key,
		conn:    conn,
		updates: make(chan models.Candle, 64),
		errs:    make(chan error, 1),
		cancel:  cancel,
		log:     f.log.With(logger.String("stream", key.String())),
	}
	go s.readLoop(sctx)
	if f.pingInterval > 0 {
		go s.pingLoop(sctx, f.pingInterval)
	}
	f.log.Debug("subscribed", logger.String("url", u))
	return s, nil
}

type wsSubscription struct {
	key     models.SessionKey
	conn    *websocket.Conn
	writeMu sync.Mutex
	updates chan models.Candle
	errs    chan error
	cancel  context.CancelFunc
	once    sync.Once
	log     *logger.Logger
}

func (s *wsSubscription) Updates() <-chan models.Candle { return s.updates }
func (s *wsSubscription) Errors() <-chan error          { return s.errs }

func (s *wsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.conn.Close()
	})
	return err
}

func (s *wsSubscription) pingLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *wsSubscription) readLoop(ctx context.Context) {
	defer close(s.updates)
	for {
		_, b, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.errs <- fmt.Errorf("binance read %s: %w", s.key, err)
			}
			return
		}

		c, ok, err := decodeKline(b)
		if err != nil {
			s.log.Warn("dropping malformed frame", logger.Error(err))
			continue
		}
		if !ok {
			continue
		}

		select {
		case s.updates <- c:
		case <-ctx.Done():
			return
		}
	}
}

// decodeKline returns ok=false for frames that are not kline events.
func decodeKline(b []byte) (models.Candle, bool, error) {
	var ev binance.WsKlineEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return models.Candle{}, false, err
	}
	if ev.Event != "kline" {
		return models.Candle{}, false, nil
	}
	k := ev.Kline

	var prices [5]float64
	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Candle{}, false, fmt.Errorf("kline %s field %d: %w", ev.Symbol, i, err)
		}
		prices[i] = v
	}

	return models.Candle{
		Symbol:    strings.ToUpper(ev.Symbol),
		Interval:  k.Interval,
		OpenTime:  time.UnixMilli(k.StartTime).UTC(),
		CloseTime: time.UnixMilli(k.EndTime).UTC(),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
		Final:     k.IsFinal,
	}, true, nil
}
