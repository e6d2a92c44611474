package dedupe

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DuplicatePolicy string        `envconfig:"DUPLICATE_POLICY" default:"skip"`
	LockTTL         time.Duration `envconfig:"DAY_LOCK_TTL" default:"30s"`
	// Connections of the Postgres pool that holds advisory day locks.
	LockConns int `envconfig:"DAY_LOCK_CONNS" default:"8"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
