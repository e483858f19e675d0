package models

import "time"

// Answer is a stored answer for one question in one period. At most one
// exists per (UserID, QuestionIndex, Period).
type Answer struct {
	UserID        int64
	QuestionIndex int
	QuestionText  string
	AnswerText    string
	Region        string
	Subregion     string // empty for leaf regions
	Period        string
	CreatedAt     time.Time
}

// RegionRecord is a stored region selection. The most recent record in a
// period is the user's current region.
//
// Subregion is empty when the selected region is a leaf; it is stored as NULL
// rather than repeating the region name.
type RegionRecord struct {
	UserID    int64
	Region    string
	Subregion string
	Period    string
	CreatedAt time.Time
}

// Label renders the region for display, "Region / Subregion" or just "Region".
func (r RegionRecord) Label() string {
	if r.Subregion == "" {
		return r.Region
	}
	return r.Region + " / " + r.Subregion
}
