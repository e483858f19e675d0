package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ibroh-tech/Omonat-bot/models"
	"github.com/ibroh-tech/Omonat-bot/survey"
)

func regionKeyboard(def *survey.Definition) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, r := range def.Regions {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.Name, regionData(i)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func subregionKeyboard(def *survey.Definition, regionID int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if r, ok := def.Region(regionID); ok {
		for j, sub := range r.Subregions {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(sub, subregionData(regionID, j)),
			))
		}
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(def.Texts.Back, dataBackToRegions),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// questionKeyboard has one row per option and always ends with a back button.
// Open-text questions get only the back button.
func questionKeyboard(texts survey.Texts, q models.Question) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, o := range q.Options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(o, answerData(q.Index, i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(texts.Back, backQuestionData(q.Index)),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
