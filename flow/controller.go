// Package flow drives users through a survey. All progress is recomputed from
// storage on every action; the controller carries no authoritative state
// between actions.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ibroh-tech/Omonat-bot/database"
	"github.com/ibroh-tech/Omonat-bot/models"
	"github.com/ibroh-tech/Omonat-bot/survey"
)

var (
	// ErrInvalidAction is returned by Handle for rejected payloads.
	ErrInvalidAction = errors.New("invalid action")
	// ErrStorage wraps storage failures reported to the user.
	ErrStorage = errors.New("storage failure")
)

// Options tune a Controller.
type Options struct {
	// StoreTimeout bounds every storage call. Zero means no bound.
	StoreTimeout time.Duration
	// AllowOutOfOrder accepts answers for questions past the next expected
	// one. When false such answers are rejected.
	AllowOutOfOrder bool
	Logger          *zap.Logger
}

// Controller is the survey state machine.
type Controller struct {
	def       *survey.Definition
	store     Store
	resolver  *Resolver
	presenter Presenter
	sessions  *Sessions
	locks     *userLocks
	opts      Options
	logger    *zap.Logger
}

// NewController wires a controller over store and presenter.
func NewController(def *survey.Definition, store Store, presenter Presenter, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		def:       def,
		store:     store,
		resolver:  NewResolver(store, def.Len(), opts.StoreTimeout),
		presenter: presenter,
		sessions:  NewSessions(),
		locks:     newUserLocks(),
		opts:      opts,
		logger:    logger,
	}
}

// Resolver returns the controller's progress resolver.
func (c *Controller) Resolver() *Resolver { return c.resolver }

// Sessions returns the ephemeral per-user state.
func (c *Controller) Sessions() *Sessions { return c.sessions }

// Handle applies one action for userID. Actions of the same user are
// serialized. Any returned error has already been reported to the user and is
// only meant for logging.
func (c *Controller) Handle(ctx context.Context, userID int64, action Action) error {
	unlock := c.locks.lock(userID)
	defer unlock()

	switch a := action.(type) {
	case StartRequested:
		return c.start(ctx, userID)
	case RegionChangeRequested:
		return c.regionChange(ctx, userID)
	case RegionInfoRequested:
		return c.regionInfo(ctx, userID)
	case RestartRequested:
		return c.restart(ctx, userID)
	case RegionSelected:
		return c.regionSelected(ctx, userID, a)
	case SubregionSelected:
		return c.subregionSelected(ctx, userID, a)
	case BackToRegionList:
		return c.showRegions(ctx, userID)
	case BackToQuestion:
		return c.backToQuestion(ctx, userID, a)
	case QuestionAnswered:
		return c.questionAnswered(ctx, userID, a)
	case OpenTextSubmitted:
		return c.openText(ctx, userID, a)
	case Malformed:
		return c.reject(ctx, userID, fmt.Errorf("%w: malformed payload %q", ErrInvalidAction, a.Payload))
	default:
		return c.reject(ctx, userID, fmt.Errorf("%w: unsupported action %T", ErrInvalidAction, action))
	}
}

func (c *Controller) start(ctx context.Context, userID int64) error {
	st, err := c.resolver.Resolve(ctx, userID)
	if err != nil {
		return c.storageFailure(ctx, userID, err)
	}
	switch {
	case st.Complete:
		return c.showMessage(ctx, userID, Message{Kind: MessageAlreadyCompleted})
	case !st.HasRegion:
		return c.showRegions(ctx, userID)
	default:
		return c.showQuestion(ctx, userID, st.Answered)
	}
}

func (c *Controller) regionChange(ctx context.Context, userID int64) error {
	complete, err := c.resolver.IsComplete(ctx, userID)
	if err != nil {
		return c.storageFailure(ctx, userID, err)
	}
	if complete {
		return c.showMessage(ctx, userID, Message{Kind: MessageAlreadyCompleted})
	}
	return c.showRegions(ctx, userID)
}

func (c *Controller) regionInfo(ctx context.Context, userID int64) error {
	region, ok, err := c.resolver.CurrentRegion(ctx, userID)
	if err != nil {
		return c.storageFailure(ctx, userID, err)
	}
	if !ok {
		return c.showMessage(ctx, userID, Message{Kind: MessageNoRegion})
	}
	return c.showMessage(ctx, userID, Message{Kind: MessageCurrentRegion, Region: region})
}

func (c *Controller) restart(ctx context.Context, userID int64) error {
	complete, err := c.resolver.IsComplete(ctx, userID)
	if err != nil {
		return c.storageFailure(ctx, userID, err)
	}
	if complete {
		return c.showMessage(ctx, userID, Message{Kind: MessageAlreadyCompleted})
	}

	sctx, cancel := c.bounded(ctx)
	err = c.store.ResetCurrentMonth(sctx, userID)
	cancel()
	if err != nil {
		return c.storageFailure(ctx, userID, fmt.Errorf("reset: %w", err))
	}
	c.logger.Info("progress reset", zap.Int64("user_id", userID))
	return c.showRegions(ctx, userID)
}

func (c *Controller) regionSelected(ctx context.Context, userID int64, a RegionSelected) error {
	region, ok := c.def.Region(a.RegionID)
	if !ok {
		return c.reject(ctx, userID, fmt.Errorf("%w: region %d", ErrInvalidAction, a.RegionID))
	}
	if done, err := c.refuseIfComplete(ctx, userID); done || err != nil {
		return err
	}
	if !region.IsLeaf() {
		c.sessions.ClearPending(userID)
		return c.present(c.presenter.ShowSubregions(ctx, userID, a.RegionID))
	}
	// Leaf regions are stored with no subregion.
	return c.saveRegion(ctx, userID, region.Name, "")
}

func (c *Controller) subregionSelected(ctx context.Context, userID int64, a SubregionSelected) error {
	region, sub, ok := c.def.Subregion(a.RegionID, a.SubregionID)
	if !ok {
		return c.reject(ctx, userID, fmt.Errorf("%w: subregion %d/%d", ErrInvalidAction, a.RegionID, a.SubregionID))
	}
	if done, err := c.refuseIfComplete(ctx, userID); done || err != nil {
		return err
	}
	return c.saveRegion(ctx, userID, region.Name, sub)
}

func (c *Controller) saveRegion(ctx context.Context, userID int64, region, subregion string) error {
	sctx, cancel := c.bounded(ctx)
	err := c.store.SaveRegion(sctx, userID, region, subregion)
	cancel()
	if err != nil {
		return c.storageFailure(ctx, userID, fmt.Errorf("save region: %w", err))
	}

	c.notify(ctx, userID, NoticeSaved)
	c.present(c.presenter.ShowMessage(ctx, userID, Message{
		Kind:   MessageRegionSaved,
		Region: models.RegionRecord{UserID: userID, Region: region, Subregion: subregion},
	}))
	return c.showNext(ctx, userID)
}

func (c *Controller) backToQuestion(ctx context.Context, userID int64, a BackToQuestion) error {
	if a.QuestionID <= 0 {
		return c.showRegions(ctx, userID)
	}
	if a.QuestionID >= c.def.Len() {
		return c.reject(ctx, userID, fmt.Errorf("%w: back from question %d", ErrInvalidAction, a.QuestionID))
	}
	answered, err := c.resolver.AnsweredCount(ctx, userID)
	if err != nil {
		return c.storageFailure(ctx, userID, err)
	}
	if answered >= c.def.Len() {
		return c.showMessage(ctx, userID, Message{Kind: MessageAlreadyCompleted})
	}
	// Only the current prompt may step back. A stale button would delete an
	// answer in the middle and leave a gap the count cannot see.
	if !c.opts.AllowOutOfOrder && a.QuestionID != answered {
		return c.redirect(ctx, userID, answered,
			fmt.Errorf("%w: back from question %d while question %d is expected", ErrInvalidAction, a.QuestionID, answered))
	}

	prev := a.QuestionID - 1
	sctx, cancel := c.bounded(ctx)
	err = c.store.DeleteAnswer(sctx, userID, prev)
	cancel()
	if err != nil {
		return c.storageFailure(ctx, userID, fmt.Errorf("undo question %d: %w", prev, err))
	}
	return c.showQuestion(ctx, userID, prev)
}

func (c *Controller) questionAnswered(ctx context.Context, userID int64, a QuestionAnswered) error {
	q, ok := c.def.Question(a.QuestionID)
	if !ok || q.IsOpenText() || a.Option < 0 || a.Option >= len(q.Options) {
		return c.reject(ctx, userID, fmt.Errorf("%w: answer %d to question %d", ErrInvalidAction, a.Option, a.QuestionID))
	}
	return c.answer(ctx, userID, q, q.Options[a.Option])
}

func (c *Controller) openText(ctx context.Context, userID int64, a OpenTextSubmitted) error {
	qIndex, ok := c.sessions.TakePending(userID)
	if !ok {
		return nil
	}
	text := strings.TrimSpace(a.Text)
	q, found := c.def.Question(qIndex)
	if text == "" || !found {
		if found {
			c.sessions.SetPending(userID, qIndex)
		}
		return nil
	}

	err := c.answer(ctx, userID, q, text)
	if errors.Is(err, ErrStorage) {
		// Let the user retype after a storage failure.
		if _, taken := c.sessions.Pending(userID); !taken {
			c.sessions.SetPending(userID, qIndex)
		}
	}
	return err
}

// answer stores text as the answer to q and moves the user on.
func (c *Controller) answer(ctx context.Context, userID int64, q models.Question, text string) error {
	answered, err := c.resolver.AnsweredCount(ctx, userID)
	if err != nil {
		return c.storageFailure(ctx, userID, err)
	}
	if answered >= c.def.Len() {
		return c.showMessage(ctx, userID, Message{Kind: MessageAlreadyCompleted})
	}
	if !c.opts.AllowOutOfOrder && q.Index > answered {
		return c.redirect(ctx, userID, answered,
			fmt.Errorf("%w: question %d answered before question %d", ErrInvalidAction, q.Index, answered))
	}

	sctx, cancel := c.bounded(ctx)
	saved, err := c.store.SaveAnswer(sctx, userID, q.Index, q.Text, text)
	cancel()
	if errors.Is(err, database.ErrNoRegion) {
		c.notify(ctx, userID, NoticeSelectRegionFirst)
		c.showRegions(ctx, userID)
		return err
	}
	if err != nil {
		return c.storageFailure(ctx, userID, fmt.Errorf("save answer %d: %w", q.Index, err))
	}

	c.logger.Debug("answer saved",
		zap.Int64("user_id", userID),
		zap.Int("question", q.Index),
		zap.String("period", saved.Period))

	c.notify(ctx, userID, NoticeSaved)
	c.present(c.presenter.ShowMessage(ctx, userID, Message{Kind: MessageAnswerSaved, Answer: saved}))
	return c.showNext(ctx, userID)
}

// showNext re-reads progress after a write and shows the next question or the
// completion message.
func (c *Controller) showNext(ctx context.Context, userID int64) error {
	next, err := c.resolver.AnsweredCount(ctx, userID)
	if err != nil {
		return c.storageFailure(ctx, userID, err)
	}
	if next >= c.def.Len() {
		return c.showMessage(ctx, userID, Message{Kind: MessageCompleted})
	}
	return c.showQuestion(ctx, userID, next)
}

func (c *Controller) showQuestion(ctx context.Context, userID int64, index int) error {
	q, ok := c.def.Question(index)
	if !ok {
		return fmt.Errorf("question %d out of range", index)
	}
	if q.IsOpenText() {
		c.sessions.SetPending(userID, index)
	} else {
		c.sessions.ClearPending(userID)
	}
	return c.present(c.presenter.ShowQuestion(ctx, userID, q))
}

func (c *Controller) showRegions(ctx context.Context, userID int64) error {
	c.sessions.ClearPending(userID)
	return c.present(c.presenter.ShowRegions(ctx, userID))
}

func (c *Controller) showMessage(ctx context.Context, userID int64, m Message) error {
	c.sessions.ClearPending(userID)
	return c.present(c.presenter.ShowMessage(ctx, userID, m))
}

// refuseIfComplete shows the already-completed message when the survey is done.
func (c *Controller) refuseIfComplete(ctx context.Context, userID int64) (bool, error) {
	complete, err := c.resolver.IsComplete(ctx, userID)
	if err != nil {
		return true, c.storageFailure(ctx, userID, err)
	}
	if complete {
		return true, c.showMessage(ctx, userID, Message{Kind: MessageAlreadyCompleted})
	}
	return false, nil
}

func (c *Controller) reject(ctx context.Context, userID int64, err error) error {
	c.notify(ctx, userID, NoticeInvalidAction)
	return err
}

// redirect rejects an action and shows the question the user is expected to
// answer.
func (c *Controller) redirect(ctx context.Context, userID int64, expected int, err error) error {
	c.notify(ctx, userID, NoticeInvalidAction)
	c.showQuestion(ctx, userID, expected)
	return err
}

func (c *Controller) storageFailure(ctx context.Context, userID int64, err error) error {
	c.logger.Error("storage failure", zap.Int64("user_id", userID), zap.Error(err))
	c.notify(ctx, userID, NoticeStorageFailure)
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

func (c *Controller) notify(ctx context.Context, userID int64, n Notice) {
	if err := c.presenter.Notify(ctx, userID, n); err != nil {
		c.logger.Warn("notice not delivered",
			zap.Int64("user_id", userID),
			zap.Stringer("notice", n),
			zap.Error(err))
	}
}

// present logs presentation failures. They never undo a stored change.
func (c *Controller) present(err error) error {
	if err != nil {
		c.logger.Warn("presentation failed", zap.Error(err))
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

func (c *Controller) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.StoreTimeout)
}
