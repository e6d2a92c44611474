package discordbot

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"setupingest/src/cache"
	"setupingest/src/database"
	"setupingest/src/discord"
	"setupingest/src/repository"
)

type DiscordBot struct{}

// Start stores messages of the configured channels until SIGINT or SIGTERM. Parsing is left
// to the ingest worker.
func (d *DiscordBot) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return err
	}

	cacheConfig := cache.GetConfig()
	client := cache.NewRedisClient(cacheConfig)
	if client != nil {
		defer client.Close()
	}

	config := discord.GetConfig()
	listener := discord.NewListener(
		repository.NewMessageRepository(),
		cache.NewConfirmedSetFromConfig(cacheConfig, client),
		config,
	)

	return discord.Run(ctx, config, listener)
}
