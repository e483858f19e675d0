package flow

// Action is a normalized inbound user action. Transports translate their own
// commands, button payloads and text messages into these values.
type Action interface {
	Kind() string
}

// StartRequested begins or resumes the survey.
type StartRequested struct{}

// RegionChangeRequested reopens region selection.
type RegionChangeRequested struct{}

// RegionInfoRequested asks which region is stored for this month.
type RegionInfoRequested struct{}

// RestartRequested discards this month's answers and regions and starts over.
type RestartRequested struct{}

// RegionSelected picks a catalog region by index.
type RegionSelected struct {
	RegionID int
}

// SubregionSelected picks a subregion of a catalog region, both by index.
type SubregionSelected struct {
	RegionID    int
	SubregionID int
}

// BackToRegionList redisplays the region list without changing storage.
type BackToRegionList struct{}

// BackToQuestion undoes the answer before QuestionID and shows that question
// again. QuestionID is the question currently displayed.
type BackToQuestion struct {
	QuestionID int
}

// QuestionAnswered selects option Option of question QuestionID.
type QuestionAnswered struct {
	QuestionID int
	Option     int
}

// OpenTextSubmitted is free-form text. It answers the pending open-text
// question, if there is one.
type OpenTextSubmitted struct {
	Text string
}

// Malformed is an inbound payload the transport could not decode.
type Malformed struct {
	Payload string
}

func (StartRequested) Kind() string        { return "start" }
func (RegionChangeRequested) Kind() string { return "region_change" }
func (RegionInfoRequested) Kind() string   { return "region_info" }
func (RestartRequested) Kind() string      { return "restart" }
func (RegionSelected) Kind() string        { return "region_selected" }
func (SubregionSelected) Kind() string     { return "subregion_selected" }
func (BackToRegionList) Kind() string      { return "back_to_regions" }
func (BackToQuestion) Kind() string        { return "back_to_question" }
func (QuestionAnswered) Kind() string      { return "question_answered" }
func (OpenTextSubmitted) Kind() string     { return "open_text" }
func (Malformed) Kind() string             { return "malformed" }
