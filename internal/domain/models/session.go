package models

import (
	"fmt"
	"strings"
	"time"
)

// SessionKey identifies a monitoring session.
type SessionKey struct {
	Symbol   string
	Interval string
}

// NewSessionKey normalises the symbol to upper case.
func NewSessionKey(symbol, interval string) SessionKey {
	return SessionKey{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Interval: strings.TrimSpace(interval)}
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s", k.Symbol, k.Interval)
}

// MonitoringSession is an immutable snapshot of one active session.
type MonitoringSession struct {
	Symbol           string         `json:"symbol"`
	Interval         string         `json:"interval"`
	Strategy         string         `json:"strategy"`
	AutoTrade        bool           `json:"auto_trade"`
	StartedAt        time.Time      `json:"started_at"`
	LatestSignal     *TradingSignal `json:"latest_signal,omitempty"`
	SignalsGenerated int64          `json:"signals_generated"`
	TradesExecuted   int64          `json:"trades_executed"`
}

func (s MonitoringSession) Key() SessionKey {
	return SessionKey{Symbol: s.Symbol, Interval: s.Interval}
}

// Stop reasons carried by monitoring.stopped events.
const (
	StopReasonRequested   = "requested"
	StopReasonFeedFailure = "feed_failure"
)

// SessionStopped is the payload of a monitoring.stopped event.
type SessionStopped struct {
	Symbol           string    `json:"symbol"`
	Interval         string    `json:"interval"`
	Strategy         string    `json:"strategy"`
	Reason           string    `json:"reason"`
	Detail           string    `json:"detail,omitempty"`
	SignalsGenerated int64     `json:"signals_generated"`
	TradesExecuted   int64     `json:"trades_executed"`
	StoppedAt        time.Time `json:"stopped_at"`
}
