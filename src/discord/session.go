package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

// Run connects to the gateway, backfills history and keeps storing new messages until ctx is
// cancelled.
func Run(ctx context.Context, config Config, listener *Listener) error {
	if config.BotToken == "" {
		return errors.New("DISCORD_BOT_TOKEN not set")
	}

	session, err := discordgo.New("Bot " + config.BotToken)
	if err != nil {
		return err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	session.AddHandler(listener.OnMessageCreate)

	if err := session.Open(); err != nil {
		return err
	}
	defer session.Close()

	logrus.WithField("channels", listener.Channels()).Info("discord gateway connected")

	if n, err := listener.Backfill(ctx, session); err != nil {
		logrus.WithError(err).Warn("discord backfill incomplete")
	} else {
		logrus.WithField("stored", n).Info("discord backfill complete")
	}

	<-ctx.Done()
	logrus.Info("discord listener stopped")
	return nil
}
