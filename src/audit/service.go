package audit

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"setupingest/src/calendar"
	"setupingest/src/model"
	"setupingest/src/parser"
	"setupingest/src/repository"
)

// DefaultUnparsedLimit caps the unparsed message list of a report.
const DefaultUnparsedLimit = 200

// ErrInvalidWindow is returned when to is not after from.
var ErrInvalidWindow = errors.New("audit window end must be after its start")

// SetupStats are the trade setup queries a report needs.
type SetupStats interface {
	DuplicateTradingDays(ctx context.Context, from, to string) ([]repository.DuplicateDay, error)
	ActiveDayCounts(ctx context.Context, from, to string) ([]repository.DayCount, error)
}

// OutcomeStats are the parse log queries a report needs.
type OutcomeStats interface {
	CountByStatus(ctx context.Context, from, to time.Time) ([]repository.StatusCount, error)
	FindUnparsed(ctx context.Context, from, to time.Time, limit int) ([]model.MessageParseLog, error)
}

// AnomalousDay is a trading day with active setups on which the market is closed.
type AnomalousDay struct {
	TradingDay string `json:"trading_day"`
	Setups     int64  `json:"setups"`
	Weekday    string `json:"weekday"`
	Holiday    string `json:"holiday,omitempty"`
}

// UnparsedMessage is a rejected or failed message with its reason.
type UnparsedMessage struct {
	MessageID  string    `json:"message_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason"`
	TradingDay string    `json:"trading_day,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Report is the operator view of one time window.
type Report struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	Messages int64            `json:"messages"`
	ByStatus map[string]int64 `json:"by_status"`
	// SuccessRate is the share of messages that parsed, skipped duplicates included.
	SuccessRate float64 `json:"success_rate"`

	DuplicateDays  []repository.DuplicateDay `json:"duplicate_days"`
	Unparsed       []UnparsedMessage         `json:"unparsed"`
	WeekendDays    []AnomalousDay            `json:"weekend_days"`
	HolidayDays    []AnomalousDay            `json:"holiday_days"`
	GeneratedAt    time.Time                 `json:"generated_at"`
	UnparsedCapped bool                      `json:"unparsed_capped,omitempty"`
}

// Service builds audit reports. It only reads.
type Service struct {
	setups        SetupStats
	outcomes      OutcomeStats
	location      *time.Location
	unparsedLimit int
	log           *logrus.Entry
	now           func() time.Time
}

func NewService(setups SetupStats, outcomes OutcomeStats, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		setups:        setups,
		outcomes:      outcomes,
		location:      location,
		unparsedLimit: DefaultUnparsedLimit,
		log:           logrus.WithField("component", "audit"),
		now:           time.Now,
	}
}

// Report covers messages received in [from, to) and trading days from the date of from to
// the date of the last instant before to, both in the market time zone.
func (s *Service) Report(ctx context.Context, from, to time.Time) (*Report, error) {
	if !to.After(from) {
		return nil, ErrInvalidWindow
	}

	firstDay := from.In(s.location).Format(parser.DayLayout)
	lastDay := to.Add(-time.Nanosecond).In(s.location).Format(parser.DayLayout)

	report := &Report{
		From:          from.UTC(),
		To:            to.UTC(),
		ByStatus:      make(map[string]int64),
		DuplicateDays: []repository.DuplicateDay{},
		Unparsed:      []UnparsedMessage{},
		WeekendDays:   []AnomalousDay{},
		HolidayDays:   []AnomalousDay{},
		GeneratedAt:   s.now().UTC(),
	}

	counts, err := s.outcomes.CountByStatus(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	var parsed int64
	for _, c := range counts {
		report.ByStatus[c.Status] = c.Count
		report.Messages += c.Count
		if c.Status == model.ParseLogStatusSuccess || c.Status == model.ParseLogStatusSkipped {
			parsed += c.Count
		}
	}
	if report.Messages > 0 {
		report.SuccessRate = float64(parsed) / float64(report.Messages)
	}

	dups, err := s.setups.DuplicateTradingDays(ctx, firstDay, lastDay)
	if err != nil {
		return nil, err
	}
	if dups != nil {
		report.DuplicateDays = dups
	}

	unparsed, err := s.outcomes.FindUnparsed(ctx, from.UTC(), to.UTC(), s.unparsedLimit+1)
	if err != nil {
		return nil, err
	}
	if len(unparsed) > s.unparsedLimit {
		unparsed = unparsed[:s.unparsedLimit]
		report.UnparsedCapped = true
	}
	for _, u := range unparsed {
		report.Unparsed = append(report.Unparsed, UnparsedMessage{
			MessageID:  u.MessageID,
			Status:     u.Status,
			Reason:     u.Reason,
			TradingDay: u.TradingDay,
			ReceivedAt: u.ReceivedAt,
		})
	}

	days, err := s.setups.ActiveDayCounts(ctx, firstDay, lastDay)
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		day, err := time.ParseInLocation(parser.DayLayout, d.TradingDay, s.location)
		if err != nil {
			s.log.WithError(err).WithField("trading_day", d.TradingDay).Warn("unreadable trading day")
			continue
		}
		anomaly := AnomalousDay{TradingDay: d.TradingDay, Setups: d.Setups, Weekday: day.Weekday().String()}
		if calendar.IsWeekend(day) {
			report.WeekendDays = append(report.WeekendDays, anomaly)
			continue
		}
		if name, ok := calendar.IsHoliday(day); ok {
			anomaly.Holiday = name
			report.HolidayDays = append(report.HolidayDays, anomaly)
		}
	}

	s.log.WithFields(logrus.Fields{
		"from":           firstDay,
		"to":             lastDay,
		"messages":       report.Messages,
		"success_rate":   report.SuccessRate,
		"duplicate_days": len(report.DuplicateDays),
		"unparsed":       len(report.Unparsed),
		"weekend_days":   len(report.WeekendDays),
		"holiday_days":   len(report.HolidayDays),
	}).Debug("audit report built")
	return report, nil
}
