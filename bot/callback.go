package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ibroh-tech/Omonat-bot/flow"
)

// Callback data carries catalog indexes rather than names to stay within
// Telegram's 64-byte limit.
const (
	prefixRegion       = "REG:"
	prefixSubregion    = "SUB:"
	prefixBackQuestion = "BACKQ:"
	prefixAnswer       = "ANS:"
	dataBackToRegions  = "BACK:REG"
)

func regionData(regionID int) string {
	return prefixRegion + strconv.Itoa(regionID)
}

func subregionData(regionID, subID int) string {
	return fmt.Sprintf("%s%d|%d", prefixSubregion, regionID, subID)
}

func backQuestionData(qIndex int) string {
	return prefixBackQuestion + strconv.Itoa(qIndex)
}

func answerData(qIndex, option int) string {
	return fmt.Sprintf("%s%d:%d", prefixAnswer, qIndex, option)
}

// ParseCallback decodes inline button data. Undecodable data becomes
// flow.Malformed so the controller can report it.
func ParseCallback(data string) flow.Action {
	malformed := flow.Malformed{Payload: data}

	switch {
	case data == dataBackToRegions:
		return flow.BackToRegionList{}

	case strings.HasPrefix(data, prefixRegion):
		id, err := strconv.Atoi(strings.TrimPrefix(data, prefixRegion))
		if err != nil {
			return malformed
		}
		return flow.RegionSelected{RegionID: id}

	case strings.HasPrefix(data, prefixSubregion):
		ids, ok := splitInts(strings.TrimPrefix(data, prefixSubregion), "|")
		if !ok {
			return malformed
		}
		return flow.SubregionSelected{RegionID: ids[0], SubregionID: ids[1]}

	case strings.HasPrefix(data, prefixBackQuestion):
		id, err := strconv.Atoi(strings.TrimPrefix(data, prefixBackQuestion))
		if err != nil {
			return malformed
		}
		return flow.BackToQuestion{QuestionID: id}

	case strings.HasPrefix(data, prefixAnswer):
		ids, ok := splitInts(strings.TrimPrefix(data, prefixAnswer), ":")
		if !ok {
			return malformed
		}
		return flow.QuestionAnswered{QuestionID: ids[0], Option: ids[1]}
	}
	return malformed
}

func splitInts(s, sep string) ([2]int, bool) {
	var out [2]int
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
