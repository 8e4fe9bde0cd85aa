package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRateLimited      = errors.New("rate limited")
	ErrNoSnapshot       = errors.New("snapshot not ready")
	ErrNoInstrument     = errors.New("no active instrument")
	ErrStaleData        = errors.New("market data stale")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrOrderTimeout     = errors.New("order timed out")
	ErrOrderRejected    = errors.New("order rejected by exchange")
	ErrKillSwitchActive = errors.New("kill switch active")
	ErrInvalidConfig    = errors.New("invalid configuration")
)
