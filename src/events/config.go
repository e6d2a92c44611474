package events

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Config struct {
	// Comma separated: log, pgnotify, redis, webhook, websocket.
	Sinks       string `envconfig:"EVENTS_SINKS" default:"log"`
	WebhookURL  string `envconfig:"EVENTS_WEBHOOK_URL" default:""`
	RedisPrefix string `envconfig:"EVENTS_REDIS_PREFIX" default:"setupingest:"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Deps are the shared clients a sink may need. Missing ones make their sink an error.
type Deps struct {
	DB    *gorm.DB
	Redis redis.UniversalClient
	Hub   *Hub
}

// Build assembles the configured sinks.
func Build(config Config, deps Deps) (Publisher, error) {
	var sinks Multi
	for _, name := range strings.Split(config.Sinks, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "":
			continue
		case "log":
			sinks = append(sinks, LogPublisher{})
		case "pgnotify":
			if deps.DB == nil {
				return nil, fmt.Errorf("pgnotify sink needs a database")
			}
			sinks = append(sinks, NewPgNotifyPublisher(deps.DB))
		case "redis":
			if deps.Redis == nil {
				return nil, fmt.Errorf("redis sink needs REDIS_ADDR")
			}
			sinks = append(sinks, NewRedisPublisher(deps.Redis, config.RedisPrefix))
		case "webhook":
			if config.WebhookURL == "" {
				return nil, fmt.Errorf("webhook sink needs EVENTS_WEBHOOK_URL")
			}
			sinks = append(sinks, NewWebhookPublisher(config.WebhookURL))
		case "websocket":
			if deps.Hub == nil {
				return nil, fmt.Errorf("websocket sink needs a hub")
			}
			sinks = append(sinks, deps.Hub)
		default:
			return nil, fmt.Errorf("unknown event sink %q", name)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, LogPublisher{})
	}
	return sinks, nil
}
