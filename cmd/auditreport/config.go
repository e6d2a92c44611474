package auditreport

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Zero values select the AUDIT_WINDOW before now.
	StartDt        time.Time `envconfig:"START_DATE"`
	EndDt          time.Time `envconfig:"END_DATE"`
	MarketTimezone string    `envconfig:"MARKET_TIMEZONE" default:"America/New_York"`
	// Exit with an error when setups are dated on closed market days.
	FailOnAnomaly bool `envconfig:"AUDIT_FAIL_ON_ANOMALY" default:"false"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
