package audit

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Cron spec with seconds. Empty disables the scheduled summary.
	Cron   string        `envconfig:"AUDIT_CRON" default:"0 30 16 * * 1-5"`
	Window time.Duration `envconfig:"AUDIT_WINDOW" default:"24h"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
