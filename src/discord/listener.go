package discord

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"setupingest/src/cache"
	"setupingest/src/model"
)

// pageSize is the largest page the channel history endpoint returns.
const pageSize = 100

// MessageStore keeps raw messages for the ingest worker.
type MessageStore interface {
	Save(ctx context.Context, msg *model.DiscordMessage) (bool, error)
	LatestInChannel(ctx context.Context, channelID string) (string, error)
}

// History pages through a channel. *discordgo.Session implements it.
type History interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Listener stores messages of the watched channels, live and from history.
type Listener struct {
	store     MessageStore
	confirmed *cache.ConfirmedSet
	channels  map[string]bool
	limiter   *rate.Limiter
	limit     int
	log       *logrus.Entry
}

func NewListener(store MessageStore, confirmed *cache.ConfirmedSet, config Config) *Listener {
	l := &Listener{
		store:     store,
		confirmed: confirmed,
		channels:  make(map[string]bool),
		limit:     config.BackfillLimit,
		log:       logrus.WithField("component", "discord"),
	}
	for _, id := range config.ChannelIDs {
		if id = strings.TrimSpace(id); id != "" {
			l.channels[id] = true
		}
	}
	perMinute := config.HistoryRatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	l.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1)
	return l
}

// Channels returns the watched channel ids, sorted.
func (l *Listener) Channels() []string {
	out := make([]string, 0, len(l.channels))
	for id := range l.channels {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Watches reports whether the channel is watched. No configured channel means all.
func (l *Listener) Watches(channelID string) bool {
	return len(l.channels) == 0 || l.channels[channelID]
}

// Store saves one Discord message unless it is ignored or already handled. It reports
// whether a new row was written.
func (l *Listener) Store(ctx context.Context, m *discordgo.Message) (bool, error) {
	if m == nil || !l.Watches(m.ChannelID) || strings.TrimSpace(m.Content) == "" {
		return false, nil
	}
	log := l.log.WithFields(logrus.Fields{"message_id": m.ID, "channel_id": m.ChannelID})

	if l.confirmed != nil {
		seen, err := l.confirmed.Seen(ctx, m.ID)
		if err != nil {
			log.WithError(err).Warn("confirmed set unavailable")
		} else if seen {
			log.Debug("message already handled")
			return false, nil
		}
	}

	row := ToModel(m)
	created, err := l.store.Save(ctx, &row)
	if err != nil {
		return false, err
	}
	if created {
		log.Info("message stored")
	}
	return created, nil
}

// OnMessageCreate is the gateway handler for new messages.
func (l *Listener) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if _, err := l.Store(context.Background(), m.Message); err != nil {
		l.log.WithError(err).WithField("message_id", m.ID).Error("failed to store message")
	}
}

// Backfill stores the history of every watched channel. A channel with stored messages
// resumes after the newest one; otherwise the last BackfillLimit messages are fetched.
func (l *Listener) Backfill(ctx context.Context, history History) (int, error) {
	var total int
	var errs []error
	for _, channelID := range l.Channels() {
		n, err := l.backfillChannel(ctx, history, channelID)
		total += n
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			l.log.WithError(err).WithField("channel_id", channelID).Error("backfill failed")
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (l *Listener) backfillChannel(ctx context.Context, history History, channelID string) (int, error) {
	after, err := l.store.LatestInChannel(ctx, channelID)
	if err != nil {
		return 0, err
	}
	log := l.log.WithFields(logrus.Fields{"channel_id": channelID, "after": after})
	log.Info("backfill started")

	var stored int
	fetched := 0
	before := ""
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			return stored, err
		}

		var page []*discordgo.Message
		if after != "" {
			page, err = history.ChannelMessages(channelID, pageSize, "", after, "")
		} else {
			page, err = history.ChannelMessages(channelID, pageSize, before, "", "")
		}
		if err != nil {
			return stored, err
		}
		if len(page) == 0 {
			break
		}

		sort.Slice(page, func(i, j int) bool { return page[i].Timestamp.Before(page[j].Timestamp) })
		for _, m := range page {
			created, err := l.Store(ctx, m)
			if err != nil {
				return stored, err
			}
			if created {
				stored++
			}
		}
		fetched += len(page)

		if len(page) < pageSize {
			break
		}
		if after != "" {
			after = page[len(page)-1].ID
		} else {
			if l.limit > 0 && fetched >= l.limit {
				break
			}
			before = page[0].ID
		}
	}

	log.WithFields(logrus.Fields{"fetched": fetched, "stored": stored}).Info("backfill done")
	return stored, nil
}

// ToModel converts a Discord message into its stored form. Timestamps are kept in UTC.
func ToModel(m *discordgo.Message) model.DiscordMessage {
	row := model.DiscordMessage{
		MessageID:   m.ID,
		ChannelID:   m.ChannelID,
		Content:     m.Content,
		Timestamp:   m.Timestamp.UTC(),
		ParseStatus: model.ParseStatusPending,
	}
	if m.Author != nil {
		row.AuthorID = m.Author.ID
	}
	return row
}
