package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ibroh-tech/Omonat-bot/flow"
	"github.com/ibroh-tech/Omonat-bot/models"
)

// callbackState tracks the inline button tap being handled.
type callbackState struct {
	id        string
	messageID int
	answered  bool // callback query acknowledged
	consumed  bool // tapped message turned into a confirmation
}

type callbackKey struct{}

func withCallback(ctx context.Context, cs *callbackState) context.Context {
	return context.WithValue(ctx, callbackKey{}, cs)
}

func callbackFrom(ctx context.Context) *callbackState {
	cs, _ := ctx.Value(callbackKey{}).(*callbackState)
	return cs
}

// ShowRegions renders the region list.
func (b *Bot) ShowRegions(ctx context.Context, userID int64) error {
	kb := regionKeyboard(b.def)
	return b.render(ctx, userID, b.def.Texts.ChooseRegion, &kb)
}

// ShowSubregions renders the subregions of a region with a back button.
func (b *Bot) ShowSubregions(ctx context.Context, userID int64, regionID int) error {
	r, ok := b.def.Region(regionID)
	if !ok {
		return fmt.Errorf("region %d out of range", regionID)
	}
	kb := subregionKeyboard(b.def, regionID)
	return b.render(ctx, userID, fmt.Sprintf(b.def.Texts.ChooseSubregion, r.Name), &kb)
}

// ShowQuestion renders a question with its options, or with a typing hint for
// open-text questions.
func (b *Bot) ShowQuestion(ctx context.Context, userID int64, q models.Question) error {
	text := "❓ " + q.Text
	if q.IsOpenText() {
		text += "\n\n" + b.def.Texts.OpenTextHint
	}
	kb := questionKeyboard(b.def.Texts, q)
	return b.render(ctx, userID, text, &kb)
}

// ShowMessage renders a message without buttons. Confirmations replace the
// prompt they confirm, so the next prompt arrives as a new message.
func (b *Bot) ShowMessage(ctx context.Context, userID int64, m flow.Message) error {
	texts := b.def.Texts
	switch m.Kind {
	case flow.MessageRegionSaved:
		return b.confirm(ctx, userID, fmt.Sprintf(texts.RegionSaved, m.Region.Label()))
	case flow.MessageAnswerSaved:
		return b.confirm(ctx, userID, fmt.Sprintf("✅ %s\n\n%s: %s", m.Answer.QuestionText, texts.YourAnswer, m.Answer.AnswerText))
	case flow.MessageAlreadyCompleted:
		return b.render(ctx, userID, texts.AlreadyCompleted, nil)
	case flow.MessageCompleted:
		return b.render(ctx, userID, texts.Completed, nil)
	case flow.MessageCurrentRegion:
		return b.render(ctx, userID, fmt.Sprintf(texts.CurrentRegion, m.Region.Label()), nil)
	case flow.MessageNoRegion:
		return b.render(ctx, userID, texts.NoRegion, nil)
	}
	return fmt.Errorf("unknown message kind %d", m.Kind)
}

// Notify answers the tapped button with a toast or alert. Outside a button
// tap, failures are sent as plain messages and success needs no notice.
func (b *Bot) Notify(ctx context.Context, userID int64, n flow.Notice) error {
	text := b.noticeText(n)
	cs := callbackFrom(ctx)
	if cs != nil && !cs.answered {
		cs.answered = true
		cb := tgbotapi.NewCallback(cs.id, text)
		if n != flow.NoticeSaved {
			cb = tgbotapi.NewCallbackWithAlert(cs.id, text)
		}
		_, err := b.send.Request(cb)
		return err
	}
	if n == flow.NoticeSaved {
		return nil
	}
	_, err := b.send.Send(tgbotapi.NewMessage(userID, text))
	return err
}

func (b *Bot) noticeText(n flow.Notice) string {
	texts := b.def.Texts
	switch n {
	case flow.NoticeSaved:
		return texts.Saved
	case flow.NoticeSelectRegionFirst:
		return texts.SelectRegionFirst
	case flow.NoticeStorageFailure:
		return texts.SaveFailed
	}
	return texts.InvalidAction
}

// render edits the tapped message when there is one and sends a new message
// otherwise or when the edit is rejected.
func (b *Bot) render(ctx context.Context, userID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	if cs := callbackFrom(ctx); cs != nil && !cs.consumed && cs.messageID != 0 {
		err := b.edit(userID, cs.messageID, text, kb)
		if err == nil {
			b.setLast(userID, cs.messageID)
			return nil
		}
		b.logger.Debug("edit failed, sending new message", zap.Int64("user_id", userID), zap.Error(err))
	}

	msg := tgbotapi.NewMessage(userID, text)
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := b.send.Send(msg)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	b.setLast(userID, sent.MessageID)
	return nil
}

// confirm turns the prompt being answered into a confirmation. It is best
// effort: when nothing can be edited the confirmation is skipped.
func (b *Bot) confirm(ctx context.Context, userID int64, text string) error {
	var messageID int
	if cs := callbackFrom(ctx); cs != nil && !cs.consumed {
		cs.consumed = true
		messageID = cs.messageID
	} else {
		messageID = b.takeLast(userID)
	}
	if messageID == 0 {
		return nil
	}
	b.forgetLast(userID, messageID)
	return b.edit(userID, messageID, text, nil)
}

func (b *Bot) edit(userID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	var edit tgbotapi.EditMessageTextConfig
	if kb != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(userID, messageID, text, *kb)
	} else {
		edit = tgbotapi.NewEditMessageText(userID, messageID, text)
	}
	_, err := b.send.Send(edit)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

func (b *Bot) setLast(userID int64, messageID int) {
	b.mu.Lock()
	b.lastMessage[userID] = messageID
	b.mu.Unlock()
}

func (b *Bot) takeLast(userID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.lastMessage[userID]
	delete(b.lastMessage, userID)
	return id
}

func (b *Bot) forgetLast(userID int64, messageID int) {
	b.mu.Lock()
	if b.lastMessage[userID] == messageID {
		delete(b.lastMessage, userID)
	}
	b.mu.Unlock()
}
