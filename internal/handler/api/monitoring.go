package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"SignalFlow/internal/domain/models"
	"SignalFlow/internal/service/ratelimit"
	xhttp "SignalFlow/pkg/http"
	xlogger "SignalFlow/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

func init() {
	_ = xhttp.RegisterValidation("interval", func(fl validator.FieldLevel) bool {
		return models.IsValidInterval(fl.Field().String())
	})
}

type Monitor interface {
	StartMonitoring(ctx context.Context, symbol, interval, strategy string, autoTrade bool) (bool, error)
	StopMonitoring(ctx context.Context, symbol, interval string) (bool, error)
	ListActiveSessions() []models.MonitoringSession
	GetLatestSignals() map[string]models.TradingSignal
}

type Trader interface {
	ExecuteTrade(ctx context.Context, symbol string, accountEquity, riskPercent float64) (*models.TradeResult, error)
}

type DeadLetters interface {
	FailedMessages(ctx context.Context, limit int) ([]models.OutboxMessage, error)
}

// HealthCheck reports the health of one dependency.
type HealthCheck func(ctx context.Context) error

// TradeDefaults are used when a trade request omits equity or risk.
type TradeDefaults struct {
	AccountEquity float64
	RiskPercent   float64
}

// MonitoringHandler serves the monitoring, signal, trade and outbox API.
type MonitoringHandler struct {
	logger   *xlogger.Logger
	monitor  Monitor
	trader   Trader
	dead     DeadLetters
	limiter  *ratelimit.Limiter
	defaults TradeDefaults
	checks   map[string]HealthCheck
}

func NewMonitoringHandler(
	logger *xlogger.Logger,
	monitor Monitor,
	trader Trader,
	dead DeadLetters,
	limiter *ratelimit.Limiter,
	defaults TradeDefaults,
	checks map[string]HealthCheck,
) *MonitoringHandler {
	return &MonitoringHandler{
		logger:   logger.With(xlogger.String("component", "api")),
		monitor:  monitor,
		trader:   trader,
		dead:     dead,
		limiter:  limiter,
		defaults: defaults,
		checks:   checks,
	}
}

func (h *MonitoringHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/monitoring", h.StartMonitoring)
	g.DELETE("/monitoring/:symbol/:interval", h.StopMonitoring)
	g.GET("/monitoring", h.ListSessions)
	g.GET("/signals/latest", h.LatestSignals)
	g.POST("/trades", h.ExecuteTrade)
	g.GET("/outbox/failed", h.FailedOutbox)
}

func (h *MonitoringHandler) StartMonitoring(c echo.Context) error {
	req := &StartMonitoringRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ok, err := h.monitor.StartMonitoring(c.Request().Context(), req.Symbol, req.Interval, req.Strategy, req.AutoTrade)
	if err != nil {
		return h.fail(c, "start monitoring", err)
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("session already active").
			WithParam("symbol", strings.ToUpper(req.Symbol)).
			WithParam("interval", req.Interval))
	}

	key := models.NewSessionKey(req.Symbol, req.Interval)
	sess, found := lo.Find(h.monitor.ListActiveSessions(), func(s models.MonitoringSession) bool {
		return s.Key() == key
	})
	if !found {
		// stopped again before we could read it back
		return xhttp.CreatedResponse(c, key)
	}
	return xhttp.CreatedResponse(c, sess)
}

func (h *MonitoringHandler) StopMonitoring(c echo.Context) error {
	symbol, interval := c.Param("symbol"), c.Param("interval")
	ok, err := h.monitor.StopMonitoring(c.Request().Context(), symbol, interval)
	if err != nil {
		return h.fail(c, "stop monitoring", err)
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no active session for %s/%s", strings.ToUpper(symbol), interval))
	}
	return xhttp.NoContentResponse(c)
}

func (h *MonitoringHandler) ListSessions(c echo.Context) error {
	sessions := h.monitor.ListActiveSessions()
	return xhttp.ListResponse(c, sessions, int64(len(sessions)))
}

func (h *MonitoringHandler) LatestSignals(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, h.monitor.GetLatestSignals())
}

func (h *MonitoringHandler) ExecuteTrade(c echo.Context) error {
	req := &ExecuteTradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	if h.limiter != nil && !h.limiter.Allow(symbol) {
		h.logger.Warn("trade rate limited", xlogger.String("symbol", symbol), xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many trade requests for "+symbol))
	}

	equity := lo.Ternary(req.AccountEquity > 0, req.AccountEquity, h.defaults.AccountEquity)
	risk := lo.Ternary(req.RiskPercent > 0, req.RiskPercent, h.defaults.RiskPercent)

	res, err := h.trader.ExecuteTrade(c.Request().Context(), symbol, equity, risk)
	if err != nil {
		return h.fail(c, "execute trade", err)
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *MonitoringHandler) FailedOutbox(c echo.Context) error {
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 50)
	msgs, err := h.dead.FailedMessages(c.Request().Context(), limit)
	if err != nil {
		return h.fail(c, "list failed outbox", err)
	}
	return xhttp.ListResponse(c, lo.Map(msgs, toOutboxDTO), int64(len(msgs)))
}

func (h *MonitoringHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			healthy = false
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

func (h *MonitoringHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain errors onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInvalidRisk),
		errors.Is(err, models.ErrInvalidInterval),
		errors.Is(err, models.ErrInvalidSymbol):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrUnknownStrategy),
		errors.Is(err, models.ErrNoActionableSignal),
		errors.Is(err, models.ErrInvalidQuantity):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrContended),
		errors.Is(err, models.ErrSessionExists):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrOrderRejected):
		return xhttp.BadGatewayError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
