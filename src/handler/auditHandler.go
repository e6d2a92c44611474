package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	logger "github.com/sirupsen/logrus"

	"setupingest/src/audit"
)

type auditReporter interface {
	Report(ctx context.Context, from, to time.Time) (*audit.Report, error)
}

// AuditHandler returns the operator audit report for from/to (RFC3339 or YYYY-MM-DD).
func AuditHandler(svc auditReporter, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := timeWindow(r, loc, time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		report, err := svc.Report(r.Context(), from, to)
		if err != nil {
			if errors.Is(err, audit.ErrInvalidWindow) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.WithError(err).Error("failed to build audit report")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}
