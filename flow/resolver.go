package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/ibroh-tech/Omonat-bot/models"
)

// Store is the durable record store. Every method is scoped to the current
// period; the implementation owns that filtering.
type Store interface {
	// SaveAnswer replaces the answer to qIndex atomically and stamps it with
	// the current region. It fails with database.ErrNoRegion when there is none.
	SaveAnswer(ctx context.Context, userID int64, qIndex int, qText, answer string) (models.Answer, error)
	DeleteAnswer(ctx context.Context, userID int64, qIndex int) error
	AnsweredCount(ctx context.Context, userID int64) (int, error)
	SaveRegion(ctx context.Context, userID int64, region, subregion string) error
	CurrentRegion(ctx context.Context, userID int64) (models.RegionRecord, bool, error)
	UsersWithPartialProgress(ctx context.Context, total int) ([]int64, error)
	ResetCurrentMonth(ctx context.Context, userID int64) error
}

// State is a user's position in the survey, derived from storage.
type State struct {
	Answered  int
	Complete  bool
	HasRegion bool
	Region    models.RegionRecord
}

// Resolver derives progress from storage alone. It keeps no state of its own,
// so concurrent calls for different users cannot interfere.
type Resolver struct {
	store   Store
	total   int
	timeout time.Duration
}

// NewResolver returns a Resolver for a survey of total questions. Each storage
// read is bounded by timeout; zero disables the bound.
func NewResolver(store Store, total int, timeout time.Duration) *Resolver {
	return &Resolver{store: store, total: total, timeout: timeout}
}

// Total returns the number of questions.
func (r *Resolver) Total() int { return r.total }

func (r *Resolver) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// AnsweredCount returns the number of distinct questions answered this
// period. It is the 0-based index of the next question and never exceeds
// Total.
func (r *Resolver) AnsweredCount(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	n, err := r.store.AnsweredCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("answered count: %w", err)
	}
	return min(n, r.total), nil
}

// IsComplete reports whether every question was answered this period.
func (r *Resolver) IsComplete(ctx context.Context, userID int64) (bool, error) {
	n, err := r.AnsweredCount(ctx, userID)
	if err != nil {
		return false, err
	}
	return n >= r.total, nil
}

// CurrentRegion returns the most recent region of this period.
func (r *Resolver) CurrentRegion(ctx context.Context, userID int64) (models.RegionRecord, bool, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	region, ok, err := r.store.CurrentRegion(ctx, userID)
	if err != nil {
		return models.RegionRecord{}, false, fmt.Errorf("current region: %w", err)
	}
	return region, ok, nil
}

// UsersWithPartialProgress returns users who started but did not finish this
// period.
func (r *Resolver) UsersWithPartialProgress(ctx context.Context) ([]int64, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	users, err := r.store.UsersWithPartialProgress(ctx, r.total)
	if err != nil {
		return nil, fmt.Errorf("users with partial progress: %w", err)
	}
	return users, nil
}

// Resolve reads the user's full state.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (State, error) {
	n, err := r.AnsweredCount(ctx, userID)
	if err != nil {
		return State{}, err
	}
	region, ok, err := r.CurrentRegion(ctx, userID)
	if err != nil {
		return State{}, err
	}
	return State{
		Answered:  n,
		Complete:  n >= r.total,
		HasRegion: ok,
		Region:    region,
	}, nil
}
