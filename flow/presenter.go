package flow

import (
	"context"

	"github.com/ibroh-tech/Omonat-bot/models"
)

// Presenter renders flow states to a user. Implementations own all transport
// details such as message ids and keyboards, and should fall back to sending
// new output when an in-place update is rejected.
type Presenter interface {
	// ShowRegions renders the region catalog.
	ShowRegions(ctx context.Context, userID int64) error
	// ShowSubregions renders the subregions of catalog region regionID.
	ShowSubregions(ctx context.Context, userID int64, regionID int) error
	// ShowQuestion renders q with its options, or an open-text prompt.
	ShowQuestion(ctx context.Context, userID int64, q models.Question) error
	// ShowMessage renders m with no interactive controls.
	ShowMessage(ctx context.Context, userID int64, m Message) error
	// Notify shows a transient notice.
	Notify(ctx context.Context, userID int64, n Notice) error
}

// MessageKind identifies a non-interactive message.
type MessageKind int

const (
	// MessageAlreadyCompleted: the survey was completed this month.
	MessageAlreadyCompleted MessageKind = iota
	// MessageCompleted: the last question was just answered.
	MessageCompleted
	// MessageRegionSaved carries the saved region in Region.
	MessageRegionSaved
	// MessageAnswerSaved carries the saved answer in Answer.
	MessageAnswerSaved
	// MessageCurrentRegion carries the stored region in Region.
	MessageCurrentRegion
	// MessageNoRegion: no region is stored this month.
	MessageNoRegion
)

// Message is a non-interactive output.
type Message struct {
	Kind   MessageKind
	Region models.RegionRecord
	Answer models.Answer
}

// Notice is a transient, non-fatal notice.
type Notice int

const (
	NoticeSaved Notice = iota
	NoticeInvalidAction
	NoticeSelectRegionFirst
	NoticeStorageFailure
)

func (n Notice) String() string {
	switch n {
	case NoticeSaved:
		return "saved"
	case NoticeInvalidAction:
		return "invalid_action"
	case NoticeSelectRegionFirst:
		return "select_region_first"
	case NoticeStorageFailure:
		return "storage_failure"
	}
	return "unknown"
}
