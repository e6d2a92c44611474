package ingest

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod     time.Duration `envconfig:"INGEST_LOOP_PERIOD" default:"5s"`
	BatchSize      int           `envconfig:"INGEST_BATCH_SIZE" default:"50"`
	Workers        int           `envconfig:"INGEST_WORKERS" default:"4"`
	MaxAttempts    int           `envconfig:"INGEST_MAX_ATTEMPTS" default:"5"`
	MarketTimezone string        `envconfig:"MARKET_TIMEZONE" default:"America/New_York"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
