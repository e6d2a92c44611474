package discord

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BotToken   string   `envconfig:"DISCORD_BOT_TOKEN" default:""`
	ChannelIDs []string `envconfig:"DISCORD_CHANNEL_IDS" default:""`
	// Messages fetched per channel when no message of it is stored yet.
	BackfillLimit int `envconfig:"DISCORD_BACKFILL_LIMIT" default:"500"`
	// History requests per minute.
	HistoryRatePerMinute int `envconfig:"DISCORD_HISTORY_RATE" default:"30"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
