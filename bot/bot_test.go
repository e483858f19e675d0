package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibroh-tech/Omonat-bot/flow"
	"github.com/ibroh-tech/Omonat-bot/models"
	"github.com/ibroh-tech/Omonat-bot/survey"
)

const testSurvey = `
texts:
  saved: "Saved!"
  select_region_first: "Region first"
  invalid_action: "Invalid"
  unknown_command: "Unknown"
regions:
  - name: Capital
  - name: North
    subregions: [Hills, Lakes]
questions:
  - text: "Q0"
    options: [A, B]
  - text: "Tell us more"
`

// fakeAPI records everything the bot sends.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
	editErr  error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && f.editErr != nil {
		return tgbotapi.Message{}, f.editErr
	}
	f.nextID++
	return tgbotapi.Message{MessageID: 100 + f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI) {
	t.Helper()
	def, err := survey.Parse([]byte(testSurvey))
	require.NoError(t, err)
	api := &fakeAPI{}
	return newBot(api, def, nil), api
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data string
		want flow.Action
	}{
		{"REG:3", flow.RegionSelected{RegionID: 3}},
		{"SUB:1|12", flow.SubregionSelected{RegionID: 1, SubregionID: 12}},
		{"BACK:REG", flow.BackToRegionList{}},
		{"BACKQ:4", flow.BackToQuestion{QuestionID: 4}},
		{"ANS:2:5", flow.QuestionAnswered{QuestionID: 2, Option: 5}},
		{"ANS:-1:0", flow.QuestionAnswered{QuestionID: -1, Option: 0}},
		{"REG:x", flow.Malformed{Payload: "REG:x"}},
		{"SUB:1", flow.Malformed{Payload: "SUB:1"}},
		{"SUB:1|a", flow.Malformed{Payload: "SUB:1|a"}},
		{"BACKQ:", flow.Malformed{Payload: "BACKQ:"}},
		{"ANS:1:2:3", flow.Malformed{Payload: "ANS:1:2:3"}},
		{"answer:1:2", flow.Malformed{Payload: "answer:1:2"}},
		{"", flow.Malformed{Payload: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCallback(tt.data))
		})
	}
}

func TestCallbackDataRoundTrip(t *testing.T) {
	assert.Equal(t, flow.RegionSelected{RegionID: 13}, ParseCallback(regionData(13)))
	assert.Equal(t, flow.SubregionSelected{RegionID: 1, SubregionID: 15}, ParseCallback(subregionData(1, 15)))
	assert.Equal(t, flow.BackToQuestion{QuestionID: 7}, ParseCallback(backQuestionData(7)))
	assert.Equal(t, flow.QuestionAnswered{QuestionID: 10, Option: 10}, ParseCallback(answerData(10, 10)))
	assert.LessOrEqual(t, len(subregionData(99, 99)), 64)
}

func TestKeyboards(t *testing.T) {
	b, _ := newTestBot(t)

	regions := regionKeyboard(b.def)
	require.Len(t, regions.InlineKeyboard, 2)
	assert.Equal(t, "North", regions.InlineKeyboard[1][0].Text)
	assert.Equal(t, "REG:1", *regions.InlineKeyboard[1][0].CallbackData)

	subs := subregionKeyboard(b.def, 1)
	require.Len(t, subs.InlineKeyboard, 3)
	assert.Equal(t, "SUB:1|1", *subs.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, dataBackToRegions, *subs.InlineKeyboard[2][0].CallbackData)

	q0, _ := b.def.Question(0)
	kb := questionKeyboard(b.def.Texts, q0)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "ANS:0:1", *kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "BACKQ:0", *kb.InlineKeyboard[2][0].CallbackData)

	open, _ := b.def.Question(1)
	kb = questionKeyboard(b.def.Texts, open)
	require.Len(t, kb.InlineKeyboard, 1, "open-text questions only get a back button")
}

func TestRenderEditsTappedMessage(t *testing.T) {
	b, api := newTestBot(t)
	ctx := withCallback(context.Background(), &callbackState{id: "cb", messageID: 42})

	q, _ := b.def.Question(0)
	require.NoError(t, b.ShowQuestion(ctx, 7, q))

	require.Len(t, api.sent, 1)
	edit, ok := api.sent[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 42, edit.MessageID)
	assert.Equal(t, "❓ Q0", edit.Text)
	require.NotNil(t, edit.ReplyMarkup)
	assert.Len(t, edit.ReplyMarkup.InlineKeyboard, 3)
}

func TestRenderFallsBackToNewMessage(t *testing.T) {
	b, api := newTestBot(t)
	api.editErr = errors.New("Bad Request: message to edit not found")
	ctx := withCallback(context.Background(), &callbackState{id: "cb", messageID: 42})

	require.NoError(t, b.ShowRegions(ctx, 7))

	require.Len(t, api.sent, 2)
	msg, ok := api.sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(7), msg.ChatID)
	assert.Equal(t, b.def.Texts.ChooseRegion, msg.Text)
	assert.Equal(t, 101, b.lastMessage[7])
}

func TestNotModifiedEditIsSuccess(t *testing.T) {
	b, api := newTestBot(t)
	api.editErr = errors.New("Bad Request: message is not modified")
	ctx := withCallback(context.Background(), &callbackState{id: "cb", messageID: 42})

	require.NoError(t, b.ShowRegions(ctx, 7))
	assert.Len(t, api.sent, 1)
}

func TestAnswerConfirmationThenNewPrompt(t *testing.T) {
	b, api := newTestBot(t)
	ctx := withCallback(context.Background(), &callbackState{id: "cb", messageID: 42})

	require.NoError(t, b.ShowMessage(ctx, 7, flow.Message{
		Kind:   flow.MessageAnswerSaved,
		Answer: models.Answer{QuestionText: "Q0", AnswerText: "B"},
	}))
	open, _ := b.def.Question(1)
	require.NoError(t, b.ShowQuestion(ctx, 7, open))

	require.Len(t, api.sent, 2)
	edit, ok := api.sent[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 42, edit.MessageID)
	assert.Nil(t, edit.ReplyMarkup)
	assert.Contains(t, edit.Text, "Q0")
	assert.Contains(t, edit.Text, "B")

	msg, ok := api.sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok, "the next prompt is a new message")
	assert.Contains(t, msg.Text, b.def.Texts.OpenTextHint)

	// A typed answer confirms the last prompt.
	require.NoError(t, b.ShowMessage(context.Background(), 7, flow.Message{
		Kind:   flow.MessageAnswerSaved,
		Answer: models.Answer{QuestionText: "Tell us more", AnswerText: "ok"},
	}))
	edit, ok = api.sent[2].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 102, edit.MessageID)
	_, tracked := b.lastMessage[7]
	assert.False(t, tracked)
}

func TestConfirmationWithoutPromptIsSkipped(t *testing.T) {
	b, api := newTestBot(t)
	require.NoError(t, b.ShowMessage(context.Background(), 7, flow.Message{Kind: flow.MessageRegionSaved}))
	assert.Empty(t, api.sent)
}

func TestTerminalMessages(t *testing.T) {
	b, api := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, b.ShowMessage(ctx, 7, flow.Message{Kind: flow.MessageAlreadyCompleted}))
	require.NoError(t, b.ShowMessage(ctx, 7, flow.Message{
		Kind:   flow.MessageCurrentRegion,
		Region: models.RegionRecord{Region: "North", Subregion: "Lakes"},
	}))
	assert.Error(t, b.ShowMessage(ctx, 7, flow.Message{Kind: flow.MessageKind(99)}))

	require.Len(t, api.sent, 2)
	first := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, b.def.Texts.AlreadyCompleted, first.Text)
	assert.Nil(t, first.ReplyMarkup)
	assert.Contains(t, api.sent[1].(tgbotapi.MessageConfig).Text, "North / Lakes")
}

func TestNotify(t *testing.T) {
	b, api := newTestBot(t)
	cs := &callbackState{id: "cb"}
	ctx := withCallback(context.Background(), cs)

	require.NoError(t, b.Notify(ctx, 7, flow.NoticeSelectRegionFirst))
	require.Len(t, api.requests, 1)
	cb := api.requests[0].(tgbotapi.CallbackConfig)
	assert.Equal(t, "cb", cb.CallbackQueryID)
	assert.Equal(t, "Region first", cb.Text)
	assert.True(t, cb.ShowAlert)
	assert.True(t, cs.answered)

	// The query is already answered; later notices become messages.
	require.NoError(t, b.Notify(ctx, 7, flow.NoticeStorageFailure))
	require.Len(t, api.sent, 1)
	assert.Equal(t, b.def.Texts.SaveFailed, api.sent[0].(tgbotapi.MessageConfig).Text)

	require.NoError(t, b.Notify(context.Background(), 7, flow.NoticeSaved))
	assert.Len(t, api.sent, 1, "success outside a tap needs no notice")
}

type handlerFunc func(ctx context.Context, userID int64, a flow.Action) error

func (f handlerFunc) Handle(ctx context.Context, userID int64, a flow.Action) error {
	return f(ctx, userID, a)
}

type capture struct {
	users   []int64
	actions []flow.Action
}

func (c *capture) handler() Handler {
	return handlerFunc(func(_ context.Context, userID int64, a flow.Action) error {
		c.users = append(c.users, userID)
		c.actions = append(c.actions, a)
		return nil
	})
}

func command(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: userID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}
}

func TestDispatchMessages(t *testing.T) {
	b, api := newTestBot(t)
	c := &capture{}
	ctx := context.Background()

	for _, text := range []string{"/start", "/region", "/my_region", "/restart"} {
		b.dispatch(ctx, c.handler(), tgbotapi.Update{Message: command(5, text)})
	}
	b.dispatch(ctx, c.handler(), tgbotapi.Update{Message: &tgbotapi.Message{
		Text: "free text",
		From: &tgbotapi.User{ID: 5},
		Chat: &tgbotapi.Chat{ID: 5},
	}})
	b.dispatch(ctx, c.handler(), tgbotapi.Update{Message: command(5, "/nope")})

	assert.Equal(t, []flow.Action{
		flow.StartRequested{},
		flow.RegionChangeRequested{},
		flow.RegionInfoRequested{},
		flow.RestartRequested{},
		flow.OpenTextSubmitted{Text: "free text"},
	}, c.actions)
	assert.Equal(t, []int64{5, 5, 5, 5, 5}, c.users)

	require.Len(t, api.sent, 1)
	assert.Equal(t, "Unknown", api.sent[0].(tgbotapi.MessageConfig).Text)
}

func TestDispatchCallback(t *testing.T) {
	b, api := newTestBot(t)
	c := &capture{}

	b.dispatch(context.Background(), c.handler(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q1",
		From:    &tgbotapi.User{ID: 9},
		Message: &tgbotapi.Message{MessageID: 55, Chat: &tgbotapi.Chat{ID: 9}},
		Data:    "SUB:1|0",
	}})

	assert.Equal(t, []flow.Action{flow.SubregionSelected{RegionID: 1, SubregionID: 0}}, c.actions)
	require.Len(t, api.requests, 1, "unanswered callbacks are acknowledged")
	assert.Equal(t, "q1", api.requests[0].(tgbotapi.CallbackConfig).CallbackQueryID)
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	b, _ := newTestBot(t)
	h := handlerFunc(func(context.Context, int64, flow.Action) error { panic("boom") })

	assert.NotPanics(t, func() {
		b.dispatch(context.Background(), h, tgbotapi.Update{Message: command(1, "/start")})
	})
}
