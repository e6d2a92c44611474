package cache

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ConfirmedCacheSize int           `envconfig:"CONFIRMED_CACHE_SIZE" default:"10000"`
	ConfirmedCacheTTL  time.Duration `envconfig:"CONFIRMED_CACHE_TTL" default:"72h"`
	RedisAddr          string        `envconfig:"REDIS_ADDR" default:""`
	RedisPassword      string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB            int           `envconfig:"REDIS_DB" default:"0"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// NewRedisClient returns nil when no address is configured.
func NewRedisClient(config Config) *redis.Client {
	if config.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
}

// NewConfirmedSetFromConfig uses Redis when a client is given and a bounded memory store
// otherwise.
func NewConfirmedSetFromConfig(config Config, client *redis.Client) *ConfirmedSet {
	if client != nil {
		logrus.WithField("addr", config.RedisAddr).Info("confirmed set backed by redis")
		return NewConfirmedSet(NewRedisStore(client, "setupingest:"), config.ConfirmedCacheTTL)
	}
	logrus.WithField("max_entries", config.ConfirmedCacheSize).Info("confirmed set backed by memory")
	return NewConfirmedSet(NewMemoryStore(config.ConfirmedCacheSize), config.ConfirmedCacheTTL)
}
