package config

import "time"

// Defaults mirrored by the envDefault tags in env.go
const (
	DefaultPort          = "8080"
	DefaultTopN          = 3
	DefaultPointsPerKG   = 10
	DefaultWatchInterval = 30 * time.Second
)

// Background task intervals
const (
	BadgerGCInterval = 10 * time.Minute
)

// Render timeouts
const (
	RenderTimeout = 30 * time.Second
	StatsTimeout  = 5 * time.Second
)

// Import limits
const (
	ImportTimeout        = 2 * time.Minute
	ImportBatchSize      = 500
	MaxImportRecords     = 1_000_000
	MaxDimensionValueLen = 256
)

// Export formats
const (
	ExportFormatCSV  = "csv"
	ExportFormatJSON = "json"
)

// Render health
const (
	// MaxFailureRate is the share of failed renders above which the server reports unhealthy.
	MaxFailureRate = 0.5
	// MinRendersForHealth is the number of renders needed before the failure rate counts.
	MinRendersForHealth = 5
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
