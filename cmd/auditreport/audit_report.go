package auditreport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"setupingest/src/audit"
	"setupingest/src/calendar"
	"setupingest/src/repository"
)

type AuditReport struct {
	Log    *logger.Entry
	DB     *gorm.DB
	Config *Config
	Out    io.Writer
	// Window is used when no dates are configured.
	Window time.Duration
	now    func() time.Time
}

// Start prints the audit report of the configured window as JSON.
func (a *AuditReport) Start(ctx context.Context) error {
	if a.Config == nil {
		a.Config = GetConfig()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.Window <= 0 {
		a.Window = 24 * time.Hour
	}

	from, to := a.window()
	svc := audit.NewService(
		repository.NewSetupRepositoryWithDB(a.DB),
		repository.NewParseLogRepositoryWithDB(a.DB),
		calendar.LoadMarketLocation(a.Config.MarketTimezone),
	)

	report, err := svc.Report(ctx, from, to)
	if err != nil {
		return err
	}

	a.Log.WithFields(map[string]interface{}{
		"from":         from,
		"to":           to,
		"messages":     report.Messages,
		"success_rate": report.SuccessRate,
	}).Info("audit report built")

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if a.Config.FailOnAnomaly && (len(report.WeekendDays) > 0 || len(report.HolidayDays) > 0) {
		return fmt.Errorf("%d weekend and %d holiday trading days have setups",
			len(report.WeekendDays), len(report.HolidayDays))
	}
	return nil
}

func (a *AuditReport) window() (time.Time, time.Time) {
	to := a.Config.EndDt
	if to.IsZero() {
		to = a.now()
	}
	from := a.Config.StartDt
	if from.IsZero() {
		from = to.Add(-a.Window)
	}
	return from, to
}
