package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
)

type translateArgs struct {
	Text string `json:"text"`
	To   string `json:"to"`
}

type Translation struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage string `json:"detectedLanguage"`
}

var translationSchema = json.RawMessage(`{"type":"object","properties":{"translatedText":{"type":"string"},"detectedLanguage":{"type":"string"}},"required":["translatedText","detectedLanguage"],"additionalProperties":false}`)

func translateTool(deps Deps) Definition {
	return Definition{
		Name:        "text_translate",
		Description: "Translate text from one language to another.",
		Schema: Schema{Fields: []Field{
			{Name: "text", Type: TypeString, Required: true, Description: "The text to translate."},
			{Name: "to", Type: TypeString, Required: true, Description: "The language to translate to (e.g., 'fr' for French)."},
		}},
		Execute: func(ctx context.Context, rc RequestContext, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[translateArgs](raw)
			if err != nil {
				return nil, err
			}
			if deps.LLM == nil {
				return nil, errors.New("translation model is not configured")
			}
			msg, err := deps.LLM.Generate(ctx, llm.Request{
				Model:  rc.Model,
				System: "You are a helpful assistant that translates text from one language to another.",
				Messages: []llm.Message{{
					Role:    llm.RoleUser,
					Content: fmt.Sprintf("Translate the following text to %s language: %s", LanguageName(args.To), args.Text),
				}},
				Schema: &llm.ResponseSchema{Name: "translation", Schema: translationSchema},
			})
			if err != nil {
				return nil, err
			}
			var out Translation
			if err := json.Unmarshal([]byte(msg.Content), &out); err != nil {
				return nil, fmt.Errorf("translation output: %w", err)
			}
			return out, nil
		},
	}
}

// LanguageName renders a BCP 47 tag as "French (fr)". Other input is
// returned trimmed.
func LanguageName(to string) string {
	to = strings.TrimSpace(to)
	tag, err := language.Parse(to)
	if err != nil {
		return to
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return to
	}
	return fmt.Sprintf("%s (%s)", name, tag.String())
}
