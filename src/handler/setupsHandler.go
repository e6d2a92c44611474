package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"setupingest/src/model"
	"setupingest/src/parser"
	"setupingest/src/repository"
)

type setupSearcher interface {
	Search(ctx context.Context, opts repository.SetupSearchOptions) ([]model.TradeSetup, error)
}

// SearchSetupsHandler lists stored setups.
// Supports pagination and filters (tradingDay, ticker, active).
func SearchSetupsHandler(repo setupSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := repository.SetupSearchOptions{}

		if dayParam := r.URL.Query().Get("tradingDay"); dayParam != "" {
			if _, err := time.Parse(parser.DayLayout, dayParam); err != nil {
				http.Error(w, "invalid tradingDay", http.StatusBadRequest)
				return
			}
			opts.TradingDay = dayParam
		}

		if tickerParam := r.URL.Query().Get("ticker"); tickerParam != "" {
			opts.Ticker = strings.ToUpper(strings.TrimSpace(tickerParam))
		}

		active := true
		opts.Active = &active
		if activeParam := r.URL.Query().Get("active"); activeParam != "" {
			if activeParam == "all" {
				opts.Active = nil
			} else {
				parsed, err := strconv.ParseBool(activeParam)
				if err != nil {
					http.Error(w, "invalid active", http.StatusBadRequest)
					return
				}
				opts.Active = &parsed
			}
		}

		page, pageSize, ok := pagination(w, r)
		if !ok {
			return
		}
		opts.Limit = pageSize
		opts.Offset = (page - 1) * pageSize

		setups, err := repo.Search(r.Context(), opts)
		if err != nil {
			logger.WithError(err).Error("failed to search setups")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if setups == nil {
			setups = []model.TradeSetup{}
		}

		writeJSON(w, http.StatusOK, setups)
	}
}

// DefaultSearchSetupsHandler wires the handler to the production repository implementation.
func DefaultSearchSetupsHandler() http.HandlerFunc {
	return SearchSetupsHandler(repository.NewSetupRepository())
}

func pagination(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	page := 1
	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		parsedPage, err := strconv.Atoi(pageParam)
		if err != nil || parsedPage <= 0 {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return 0, 0, false
		}
		page = parsedPage
	}

	pageSize := 50
	if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
		parsedSize, err := strconv.Atoi(sizeParam)
		if err != nil || parsedSize <= 0 || parsedSize > 500 {
			http.Error(w, "invalid pageSize", http.StatusBadRequest)
			return 0, 0, false
		}
		pageSize = parsedSize
	}
	return page, pageSize, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
