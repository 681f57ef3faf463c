package config

import "time"

// Deployment gas.
const (
	// GasLimitFactoryDeploy is used when eth_estimateGas fails against the factory.
	GasLimitFactoryDeploy = uint64(3_000_000)
	// GasMarginPercent is added on top of every successful estimate.
	GasMarginPercent = 20
)

// Receipt polling: 90 attempts at 2s is roughly three minutes.
const (
	ReceiptPollInterval    = 2 * time.Second
	ReceiptPollMaxAttempts = 90
)

// Limits and rewards.
const (
	MaxStringInputBytes = 256
	ReferralPoints      = 100
	FlashLifetime       = 5 * time.Second
)

// Timeout constants used across cmd and server packages.
const (
	RPCSelectTimeout    = 10 * time.Second // BestEVM benchmark / RPC selection
	RemoteSyncTimeout   = 15 * time.Second // one push + re-fetch against the record store
	HTTPShutdownTimeout = 10 * time.Second
)
