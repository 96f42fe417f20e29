// Package klok defines the logger and the global monitoring registry.
//
// Klok is a single-node ledger runtime that executes native smart contracts,
// built around a descending-price auction settled between two fungible
// assets. The modules are combined by the node binary in cmd/klokd.
package klok

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.DebugLevel)

// PromCollectors contains the prometheus collectors created by the modules.
// They are registered when the prometheus service of the proxy starts.
var PromCollectors []prometheus.Collector
