// Package llm generates structured question sets from course material via
// an OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hoosierprep/portal/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// maxContentChars caps the material passed to the model to stay inside
// typical context windows.
const maxContentChars = 15000

// GenerateConfig controls one exam generation run.
type GenerateConfig struct {
	QuestionCount int
	Difficulty    string
	QuestionTypes []model.QuestionType
	FocusConcepts []string
}

// GeneratedMetadata describes the generated exam as a whole.
type GeneratedMetadata struct {
	Topic                string   `json:"topic"`
	Themes               []string `json:"themes"`
	Difficulty           string   `json:"difficulty"`
	EstimatedTimeMinutes int      `json:"estimated_time_minutes"`
}

// GeneratedExam is the validated result of a generation call.
type GeneratedExam struct {
	Metadata  GeneratedMetadata
	Questions []model.QuestionDraft
}

// generatedQuestion mirrors the JSON shape the model is instructed to emit.
type generatedQuestion struct {
	Question    string   `json:"question"`
	Answer      any      `json:"answer"`
	Type        string   `json:"type"`
	Options     []string `json:"options"`
	Concepts    []string `json:"concepts"`
	Explanation string   `json:"explanation"`
}

type generatedPayload struct {
	Metadata  GeneratedMetadata   `json:"metadata"`
	Questions []generatedQuestion `json:"questions"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint check: %w", err)
	}
	return nil
}

// GenerateExam turns material text into a structured set of questions. The
// model's JSON output is validated before anything reaches the caller.
func (c *Client) GenerateExam(ctx context.Context, content string, cfg GenerateConfig) (*GeneratedExam, error) {
	prompt := buildGenerationPrompt(content, cfg)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM generation response", "raw", raw)

	return parseGeneratedExam(raw)
}

// parseGeneratedExam parses and validates the model's JSON response.
func parseGeneratedExam(raw string) (*GeneratedExam, error) {
	var payload generatedPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		return nil, fmt.Errorf("parse generation response: %w", err)
	}
	if len(payload.Questions) == 0 {
		return nil, fmt.Errorf("no questions generated")
	}

	exam := &GeneratedExam{Metadata: payload.Metadata}
	for _, gq := range payload.Questions {
		qtype := model.QuestionType(strings.ToLower(strings.TrimSpace(gq.Type)))
		if !qtype.Valid() {
			// Models occasionally invent types; fall back to free text.
			qtype = model.TypeShort
		}
		if qtype == model.TypeMCQ && len(gq.Options) < 2 {
			return nil, fmt.Errorf("mcq question missing valid options: %s", gq.Question)
		}
		options := gq.Options
		if qtype != model.TypeMCQ && qtype != model.TypeMulti {
			options = nil
		}
		exam.Questions = append(exam.Questions, model.QuestionDraft{
			Stem:     strings.TrimSpace(gq.Question),
			Type:     qtype,
			Options:  options,
			Answer:   draftAnswer(qtype, gq.Answer),
			Concepts: gq.Concepts,
		})
	}
	return exam, nil
}

// draftAnswer coerces the model's loosely-typed answer field into the
// canonical Answer variant for the question type. Cloze answers arriving as
// arrays (one per blank) are |-joined because cloze grading is whole-string.
func draftAnswer(t model.QuestionType, v any) model.Answer {
	switch t {
	case model.TypeMulti:
		if s, ok := v.(string); ok {
			return model.Answer{List: []string{strings.TrimSpace(s)}}
		}
		return model.AnswerFromValue(t, v)
	case model.TypeTrueFalse:
		if b, ok := v.(bool); ok {
			return model.Answer{Bool: b}
		}
		s, _ := v.(string)
		return model.Answer{Bool: strings.EqualFold(strings.TrimSpace(s), "true")}
	case model.TypeCloze:
		if list, ok := v.([]any); ok {
			parts := make([]string, 0, len(list))
			for _, e := range list {
				parts = append(parts, strings.TrimSpace(fmt.Sprint(e)))
			}
			return model.Answer{Text: strings.Join(parts, "|")}
		}
		return model.AnswerFromValue(t, v)
	default:
		return model.AnswerFromValue(t, v)
	}
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	// Fall back to the outermost object.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func buildGenerationPrompt(content string, cfg GenerateConfig) string {
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	typeNames := make([]string, 0, len(cfg.QuestionTypes))
	for _, t := range cfg.QuestionTypes {
		typeNames = append(typeNames, string(t))
	}
	types := strings.Join(typeNames, ", ")

	var sb strings.Builder
	sb.WriteString("You are an exam generator that transforms study materials into structured question sets.\n\n")
	sb.WriteString("Study Material:\n" + content + "\n\n")
	sb.WriteString("Requirements:\n")
	sb.WriteString(fmt.Sprintf("- Generate exactly %d questions\n", cfg.QuestionCount))
	sb.WriteString("- Difficulty level: " + cfg.Difficulty + "\n")
	sb.WriteString("- Question types to include: " + types + "\n")
	if len(cfg.FocusConcepts) > 0 {
		sb.WriteString("- Focus on these concepts: " + strings.Join(cfg.FocusConcepts, ", ") + "\n")
	}
	sb.WriteString("\nQUESTION TYPE DEFINITIONS:\n")
	sb.WriteString("- mcq: Multiple choice with exactly ONE correct answer (provide 4 options)\n")
	sb.WriteString("- multi: Multiple choice where the user selects ALL correct answers (provide 4+ options)\n")
	sb.WriteString("- short: Short text answer (single word or phrase)\n")
	sb.WriteString("- truefalse: True or False question\n")
	sb.WriteString("- cloze: Fill-in-the-blank question with one or more blanks\n")
	sb.WriteString("\nIMPORTANT RULES:\n")
	sb.WriteString("1. For mcq, provide exactly 4 options with the correct answer as ONE of them.\n")
	sb.WriteString("2. Wrong options must be plausible, never obviously wrong.\n")
	sb.WriteString("3. For short, truefalse and cloze questions, set options to null.\n")
	sb.WriteString("4. Each question should have 1-3 relevant concept tags.\n")
	sb.WriteString("5. Distribute questions evenly across the selected types.\n")
	sb.WriteString("6. Do not include citation markers or annotations in question text.\n")
	sb.WriteString("\nANSWER FIELD FORMATTING:\n")
	sb.WriteString("- mcq: single answer matching one option exactly\n")
	sb.WriteString("- multi: array with all correct options\n")
	sb.WriteString("- short: simple text\n")
	sb.WriteString(`- truefalse: "True" or "False"` + "\n")
	sb.WriteString("- cloze: array with the answer for each blank, in order\n")
	sb.WriteString("\nReturn ONLY valid JSON in this exact format:\n")
	sb.WriteString(`{"metadata": {"topic": "main topic", "themes": ["theme1", "theme2"], "difficulty": "` + cfg.Difficulty + `", "estimated_time_minutes": 0}, `)
	sb.WriteString(`"questions": [{"question": "text", "answer": "correct answer", "type": "mcq|multi|short|truefalse|cloze", "options": ["a", "b", "c", "d"], "concepts": ["concept1"], "explanation": "why"}]}`)
	sb.WriteString("\n")
	return sb.String()
}
