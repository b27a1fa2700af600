package app

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"marketgen/pkg/ai"
	"marketgen/pkg/domain"
)

// marketingContentSchema constrains generate.content output. Every object
// requires all of its fields and rejects extras.
var marketingContentSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "prospectus": {
      "type": "object",
      "properties": {
        "title": {"type": "string"},
        "sections": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "subtitle": {"type": "string"},
              "text": {"type": "string"}
            },
            "required": ["subtitle", "text"],
            "additionalProperties": false
          }
        }
      },
      "required": ["title", "sections"],
      "additionalProperties": false
    },
    "videoScript": {
      "type": "object",
      "properties": {
        "title": {"type": "string"},
        "totalDuration": {"type": "number"},
        "scenes": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "sceneNumber": {"type": "integer"},
              "duration": {"type": "number"},
              "visuals": {"type": "string"},
              "voiceover": {"type": "string"},
              "bgmSuggestion": {"type": "string"}
            },
            "required": ["sceneNumber", "duration", "visuals", "voiceover", "bgmSuggestion"],
            "additionalProperties": false
          }
        }
      },
      "required": ["title", "totalDuration", "scenes"],
      "additionalProperties": false
    },
    "posterElements": {
      "type": "object",
      "properties": {
        "mainHeadline": {"type": "string"},
        "subHeadline": {"type": "string"},
        "bodyText": {"type": "string"},
        "callToAction": {"type": "string"}
      },
      "required": ["mainHeadline", "subHeadline", "bodyText", "callToAction"],
      "additionalProperties": false
    }
  },
  "required": ["prospectus", "videoScript", "posterElements"],
  "additionalProperties": false
}`)

var platformContentsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "platforms": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "content": {"type": "string"},
          "hashtags": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["title", "content"]
      }
    }
  },
  "required": ["platforms"]
}`)

var (
	contentValidator  = mustCompile(marketingContentSchema)
	platformValidator = mustCompile(platformContentsSchema)
)

func contentResponseSchema() ai.JSONSchema {
	return ai.JSONSchema{Name: "marketing_content", Strict: true, Schema: marketingContentSchema}
}

func mustCompile(raw json.RawMessage) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		panic(fmt.Sprintf("compile response schema: %v", err))
	}
	return schema
}

// StripCodeFence removes a surrounding markdown code fence (optionally tagged
// json) and surrounding whitespace. Clean text is returned unchanged.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if len(s) >= 7 && strings.EqualFold(s[:7], "```json") {
		s = strings.TrimLeft(s[7:], " \t\r\n")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimLeft(s[3:], " \t\r\n")
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimRight(s[:len(s)-3], " \t\r\n")
	}
	return s
}

// decodeValidated strips fences, checks the text against schema and decodes it into out.
func decodeValidated(text string, schema *jsonschema.Schema, out any) error {
	cleaned := StripCodeFence(text)
	var generic any
	if err := json.Unmarshal([]byte(cleaned), &generic); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	result := schema.Validate(generic)
	if !result.IsValid() {
		msgs := make([]string, 0, len(result.Errors))
		for field, evalErr := range result.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		sort.Strings(msgs)
		return fmt.Errorf("%w: %s", ErrParse, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

func decodeContent(text string) (domain.MarketingContent, error) {
	var content domain.MarketingContent
	if err := decodeValidated(text, contentValidator, &content); err != nil {
		return domain.MarketingContent{}, err
	}
	return content, nil
}

// decodePlatforms keeps only the requested platforms; every requested one must be present.
func decodePlatforms(text string, requested []domain.Platform) (domain.PlatformContents, error) {
	var raw domain.PlatformContents
	if err := decodeValidated(text, platformValidator, &raw); err != nil {
		return domain.PlatformContents{}, err
	}
	out := domain.PlatformContents{Platforms: make(map[string]domain.PlatformContent, len(requested))}
	for _, p := range requested {
		entry, ok := raw.Platforms[p.String()]
		if !ok {
			return domain.PlatformContents{}, fmt.Errorf("%w: missing platform %s", ErrParse, p)
		}
		if entry.Hashtags == nil {
			entry.Hashtags = []string{}
		}
		out.Platforms[p.String()] = entry
	}
	return out, nil
}
