package dedupe

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ContributorLookup finds the message currently holding a trading day.
type ContributorLookup interface {
	FindDayContributor(ctx context.Context, tradingDay string) (*DayContributor, error)
}

// Outcome is handed to the write callback.
type Outcome struct {
	Decision Decision
	Existing *DayContributor
}

// Resolver applies the policy with the trading day locked, so two messages for the same day
// can never both believe they came first.
type Resolver struct {
	policy Policy
	lookup ContributorLookup
	locker Locker
	log    *logrus.Entry
}

func NewResolver(policy Policy, lookup ContributorLookup, locker Locker) *Resolver {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Resolver{
		policy: policy,
		lookup: lookup,
		locker: locker,
		log:    logrus.WithField("component", "dedupe"),
	}
}

func (r *Resolver) Policy() Policy { return r.policy }

// Resolve locks the day, decides and runs write while the lock is held. write is called for
// every decision, skip included, so the caller can record the outcome in the same critical
// section.
func (r *Resolver) Resolve(ctx context.Context, tradingDay string, candidate DayContributor, write func(Outcome) error) (Outcome, error) {
	unlock, err := r.locker.Lock(ctx, tradingDay)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to lock trading day %s: %w", tradingDay, err)
	}
	defer unlock()

	existing, err := r.lookup.FindDayContributor(ctx, tradingDay)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Decision: Decide(r.policy, existing, candidate), Existing: existing}

	fields := logrus.Fields{
		"trading_day": tradingDay,
		"message_id":  candidate.MessageID,
		"policy":      r.policy,
		"decision":    out.Decision,
	}
	if existing != nil {
		fields["existing_message_id"] = existing.MessageID
	}
	r.log.WithFields(fields).Debug("duplicate policy applied")

	if write != nil {
		if err := write(out); err != nil {
			return out, err
		}
	}
	return out, nil
}
