package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler logs an audit summary on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	window  time.Duration
	baseCtx context.Context
	log     *logrus.Entry
}

// NewScheduler evaluates the spec in the market time zone of service.
func NewScheduler(baseCtx context.Context, service *Service, spec string, window time.Duration) (*Scheduler, error) {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(service.location)),
		service: service,
		window:  window,
		baseCtx: baseCtx,
		log:     logrus.WithField("component", "audit_cron"),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(s.baseCtx) }); err != nil {
		return nil, err
	}
	return s, nil
}

// RunOnce reports on the window ending now.
func (s *Scheduler) RunOnce(ctx context.Context) {
	to := s.service.now()
	report, err := s.service.Report(ctx, to.Add(-s.window), to)
	if err != nil {
		s.log.WithError(err).Error("scheduled audit failed")
		return
	}

	entry := s.log.WithFields(logrus.Fields{
		"messages":       report.Messages,
		"success_rate":   report.SuccessRate,
		"duplicate_days": len(report.DuplicateDays),
		"unparsed":       len(report.Unparsed),
		"weekend_days":   len(report.WeekendDays),
		"holiday_days":   len(report.HolidayDays),
	})
	if len(report.WeekendDays) > 0 || len(report.HolidayDays) > 0 {
		entry.Warn("audit found setups dated on closed market days")
		return
	}
	entry.Info("audit summary")
}

func (s *Scheduler) Start() {
	s.log.Info("audit cron started")
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("audit cron stopped")
}
