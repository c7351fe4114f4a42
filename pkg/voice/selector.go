package voice

import (
	"strings"

	"navvoice/pkg/model"
)

// Select picks the representation to synthesize. Markup wins over plain text.
// An announcement with neither yields empty text and the plain type.
func Select(a *model.Announcement) (string, model.TextType) {
	if a == nil {
		return "", model.TextTypePlain
	}
	if strings.TrimSpace(a.SSML) != "" {
		return a.SSML, model.TextTypeSSML
	}
	return a.Text, model.TextTypePlain
}
