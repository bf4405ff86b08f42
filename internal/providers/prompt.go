package providers

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/folio/internal/lang"
)

const translateSystemPrompt = `You are a professional document translator.
Translate the page text you are given into the requested language.
Keep line breaks, lists and numbering. Do not add commentary, notes or quotation marks.
Return only the translation.`

func translateUserPrompt(req TranslateRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("translate: page text is required for LLM translators")
	}
	return fmt.Sprintf("Target language: %s (%s)\n\n%s", lang.Name(req.TargetLanguage), req.TargetLanguage, req.Text), nil
}
