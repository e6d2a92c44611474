package ingest

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"setupingest/src/cache"
	"setupingest/src/calendar"
	"setupingest/src/database"
	"setupingest/src/dedupe"
	"setupingest/src/events"
	"setupingest/src/parser"
	"setupingest/src/repository"
)

// Components are the long lived values a command needs, built once from the environment.
type Components struct {
	Pipeline   *Pipeline
	Messages   *repository.MessageRepository
	Setups     *repository.SetupRepository
	ParseLogs  *repository.ParseLogRepository
	Exceptions *repository.ExceptionRepository
	Confirmed  *cache.ConfirmedSet
	Hub        *events.Hub
	Redis      *redis.Client
	Config     Config

	closeLocker func() error
}

// Build wires the pipeline against db. Redis is used for the day lock, the confirmed set and
// the redis event sink when REDIS_ADDR is set; otherwise Postgres advisory locks guard the day.
func Build(db *gorm.DB) (*Components, error) {
	config := GetConfig()

	p, err := parser.NewFromConfig(parser.GetConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}

	dedupeConfig := dedupe.GetConfig()
	policy, err := dedupe.ParsePolicy(dedupeConfig.DuplicatePolicy)
	if err != nil {
		return nil, err
	}

	cacheConfig := cache.GetConfig()
	client := cache.NewRedisClient(cacheConfig)

	c := &Components{
		Messages:   repository.NewMessageRepositoryWithDB(db),
		Setups:     repository.NewSetupRepositoryWithDB(db),
		ParseLogs:  repository.NewParseLogRepositoryWithDB(db),
		Exceptions: repository.NewExceptionRepositoryWithDB(db),
		Confirmed:  cache.NewConfirmedSetFromConfig(cacheConfig, client),
		Hub:        events.NewHub(),
		Redis:      client,
		Config:     config,
	}

	deps := events.Deps{DB: db, Hub: c.Hub}
	if client != nil {
		deps.Redis = client
	}

	locker, closeLocker, err := dayLocker(client, database.GetConfig(), dedupeConfig)
	if err != nil {
		return nil, err
	}
	c.closeLocker = closeLocker

	publisher, err := events.Build(events.GetConfig(), deps)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Pipeline = NewPipeline(Deps{
		Parser:     p,
		Resolver:   dedupe.NewResolver(policy, c.Setups, locker),
		Setups:     c.Setups,
		Publisher:  publisher,
		Confirmed:  c.Confirmed,
		Exceptions: c.Exceptions,
		Location:   calendar.LoadMarketLocation(config.MarketTimezone),
		Logger:     logrus.WithField("component", "ingest"),
	})

	logrus.WithFields(logrus.Fields{
		"policy":   policy,
		"timezone": config.MarketTimezone,
		"redis":    client != nil,
		"locker":   fmt.Sprintf("%T", locker),
	}).Info("ingest pipeline ready")
	return c, nil
}

// Close releases the shared clients.
func (c *Components) Close() {
	c.Hub.Close()
	if c.closeLocker != nil {
		if err := c.closeLocker(); err != nil {
			logrus.WithError(err).Warn("failed to close day lock pool")
		}
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}

// dayLocker picks the lock shared by every process writing setups. Only sqlite falls back to
// a process local lock, so a sqlite deployment must run a single writer process.
func dayLocker(client *redis.Client, dbConfig database.Config, config dedupe.Config) (dedupe.Locker, func() error, error) {
	switch {
	case client != nil:
		return dedupe.NewRedisLocker(client, config.LockTTL), nil, nil
	case dbConfig.DatabaseDriver == "postgres" || dbConfig.DatabaseDriver == "":
		lockDB, err := sql.Open("postgres", dbConfig.DatabaseURLMain)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open day lock pool: %w", err)
		}
		if config.LockConns > 0 {
			lockDB.SetMaxOpenConns(config.LockConns)
			lockDB.SetMaxIdleConns(config.LockConns)
		}
		return dedupe.NewPgAdvisoryLocker(lockDB), lockDB.Close, nil
	default:
		logrus.WithField("driver", dbConfig.DatabaseDriver).Warn("trading day lock is process local, run a single writer process")
		return dedupe.NewKeyedMutex(), nil, nil
	}
}
