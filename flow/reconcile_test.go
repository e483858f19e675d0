package flow

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ibroh-tech/Omonat-bot/models"
	"github.com/ibroh-tech/Omonat-bot/survey"
)

// stubStore serves canned progress. Methods reconciliation does not use panic
// through the nil embedded Store.
type stubStore struct {
	Store
	users   []int64
	counts  map[int64]int
	regions map[int64]models.RegionRecord
	listErr error
}

func (s *stubStore) AnsweredCount(_ context.Context, userID int64) (int, error) {
	return s.counts[userID], nil
}

func (s *stubStore) CurrentRegion(_ context.Context, userID int64) (models.RegionRecord, bool, error) {
	r, ok := s.regions[userID]
	return r, ok, nil
}

func (s *stubStore) UsersWithPartialProgress(_ context.Context, _ int) ([]int64, error) {
	return s.users, s.listErr
}

func sortedCalls(calls []call) []call {
	sort.Slice(calls, func(i, j int) bool { return calls[i].User < calls[j].User })
	return calls
}

func TestReconcileResumesAtAnsweredCount(t *testing.T) {
	h := newHarness(t, threeQuestions, Options{})
	const user = 1
	h.mustHandle(t, user, RegionSelected{RegionID: 0}, QuestionAnswered{QuestionID: 0, Option: 0})
	h.mustHandle(t, 2, RegionSelected{RegionID: 0})
	h.mustHandle(t, 3,
		RegionSelected{RegionID: 0},
		QuestionAnswered{QuestionID: 0, Option: 0},
		QuestionAnswered{QuestionID: 1, Option: 0},
		QuestionAnswered{QuestionID: 2, Option: 0},
	)
	h.rec.take()

	// A fresh controller stands in for a restarted process.
	restarted := NewController(h.def, h.db, h.rec, Options{})
	report, err := restarted.Reconcile(context.Background(), ReconcileOptions{Parallelism: 2, UserTimeout: time.Second})
	require.NoError(t, err)

	assert.Equal(t, ReconcileReport{Users: 1, Resumed: 1}, report)
	assert.Equal(t, []call{{user, "question", "1"}}, h.rec.take())
}

func TestReconcileOpenTextRestoresPending(t *testing.T) {
	h := newHarness(t, withOpenText, Options{})
	h.mustHandle(t, 1, RegionSelected{RegionID: 0}, QuestionAnswered{QuestionID: 0, Option: 0})

	restarted := NewController(h.def, h.db, h.rec, Options{})
	_, err := restarted.Reconcile(context.Background(), ReconcileOptions{})
	require.NoError(t, err)

	q, ok := restarted.Sessions().Pending(1)
	require.True(t, ok)
	assert.Equal(t, 1, q)
}

func newStubController(t *testing.T, store *stubStore, rec *recorder) *Controller {
	t.Helper()
	def, err := survey.Parse([]byte(threeQuestions))
	require.NoError(t, err)
	return NewController(def, store, rec, Options{})
}

func TestReconcileWithoutRegionPromptsRegion(t *testing.T) {
	store := &stubStore{
		users:  []int64{1, 2},
		counts: map[int64]int{1: 2, 2: 1},
		regions: map[int64]models.RegionRecord{
			1: {Region: "Capital"},
		},
	}
	rec := &recorder{}
	ctrl := newStubController(t, store, rec)

	report, err := ctrl.Reconcile(context.Background(), ReconcileOptions{Parallelism: 4})
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Users: 2, Resumed: 2}, report)
	assert.Equal(t, []call{
		{1, "question", "2"},
		{2, "regions", ""},
	}, sortedCalls(rec.take()))
}

func TestReconcileIsolatesFailures(t *testing.T) {
	store := &stubStore{
		users:  []int64{1, 2, 3},
		counts: map[int64]int{1: 1, 2: 1, 3: 1},
		regions: map[int64]models.RegionRecord{
			1: {Region: "Capital"}, 2: {Region: "Capital"}, 3: {Region: "Capital"},
		},
	}
	rec := &recorder{
		hook: func(ctx context.Context, c call) error {
			switch c.User {
			case 2:
				return errors.New("bot was blocked by the user")
			case 3:
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
	}
	ctrl := newStubController(t, store, rec)

	report, err := ctrl.Reconcile(context.Background(), ReconcileOptions{
		Parallelism: 1,
		UserTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Users: 3, Resumed: 1, Failed: 2}, report)
}

func TestReconcileLogsOneSummary(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := &stubStore{
		users:   []int64{1},
		counts:  map[int64]int{1: 1},
		regions: map[int64]models.RegionRecord{1: {Region: "Capital"}},
	}
	def, err := survey.Parse([]byte(threeQuestions))
	require.NoError(t, err)
	ctrl := NewController(def, store, &recorder{}, Options{Logger: zap.New(core)})

	_, err = ctrl.Reconcile(context.Background(), ReconcileOptions{})
	require.NoError(t, err)

	entries := logs.FilterMessage("reconciliation finished").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(1), fields["users"])
	assert.Equal(t, int64(1), fields["resumed"])
	assert.Equal(t, int64(0), fields["failed"])
}

func TestAbandonedResumeHoldsUserUntilPresenterReturns(t *testing.T) {
	store := &stubStore{
		users:   []int64{1},
		counts:  map[int64]int{1: 1},
		regions: map[int64]models.RegionRecord{1: {Region: "Capital"}},
	}
	release := make(chan struct{})
	rec := &recorder{
		hook: func(_ context.Context, c call) error {
			if c.Op == "question" {
				<-release
			}
			return nil
		},
	}
	ctrl := newStubController(t, store, rec)

	report, err := ctrl.Reconcile(context.Background(), ReconcileOptions{UserTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	done := make(chan error, 1)
	go func() { done <- ctrl.Handle(context.Background(), 1, RegionInfoRequested{}) }()
	select {
	case <-done:
		t.Fatal("live action ran while the abandoned resume held the user")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("user stayed locked after the presenter returned")
	}
	assert.Contains(t, rec.take(), call{1, "message", "current_region:Capital"})
}

func TestReconcileListFailure(t *testing.T) {
	store := &stubStore{listErr: errors.New("database is locked")}
	ctrl := newStubController(t, store, &recorder{})

	_, err := ctrl.Reconcile(context.Background(), ReconcileOptions{})
	assert.ErrorContains(t, err, "database is locked")
}

func TestResolver(t *testing.T) {
	store := &stubStore{
		users:   []int64{7},
		counts:  map[int64]int{1: 0, 2: 2, 3: 5},
		regions: map[int64]models.RegionRecord{2: {Region: "North", Subregion: "Lakes"}},
	}
	r := NewResolver(store, 3, time.Second)
	ctx := context.Background()

	st, err := r.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, State{}, st)

	st, err = r.Resolve(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Answered)
	assert.False(t, st.Complete)
	assert.True(t, st.HasRegion)
	assert.Equal(t, "North / Lakes", st.Region.Label())

	n, err := r.AnsweredCount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "count is capped at the number of questions")
	complete, err := r.IsComplete(ctx, 3)
	require.NoError(t, err)
	assert.True(t, complete)

	users, err := r.UsersWithPartialProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, users)
	assert.Equal(t, 3, r.Total())
}
