package provider

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultSuggestionLimit caps how many titles the model is asked for.
const DefaultSuggestionLimit = 8

const suggestPrompt = `You are the search backend of a learning app.
Suggest up to %d course or article titles related to the search query below.
Return ONLY the titles, one per line, no numbering, no explanation.

Search query: %q`

// OpenAI suggests results with a chat completion model.
type OpenAI struct {
	client openai.Client
	model  openai.ChatModel
	limit  int
}

// NewOpenAI creates a provider for modelName. OPENAI_API_KEY must be set.
func NewOpenAI(modelName string, limit int) (*OpenAI, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  chatModel(modelName),
		limit:  limit,
	}, nil
}

func chatModel(name string) openai.ChatModel {
	switch name {
	case "gpt-4o":
		return openai.ChatModelGPT4o
	case "gpt-4o-mini", "":
		return openai.ChatModelGPT4oMini
	case "gpt-4":
		return openai.ChatModelGPT4
	case "gpt-3.5-turbo":
		return openai.ChatModelGPT3_5Turbo
	default:
		return openai.ChatModel(name)
	}
}

func (p *OpenAI) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(suggestPrompt, p.limit, query)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return parseSuggestions(resp.Choices[0].Message.Content, p.limit), nil
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

// parseSuggestions turns a one-title-per-line answer into results, dropping
// list markers, blanks and case-insensitive duplicates.
func parseSuggestions(content string, limit int) []Result {
	results := []Result{}
	seen := make(map[string]bool)

	for _, line := range strings.Split(content, "\n") {
		title := listMarker.ReplaceAllString(line, "")
		title = strings.Trim(strings.TrimSpace(title), "`\"")
		title = strings.TrimSpace(title)
		if title == "" || seen[strings.ToLower(title)] {
			continue
		}
		seen[strings.ToLower(title)] = true
		results = append(results, Result{ID: resultID(len(results), title), Title: title})
		if len(results) == limit {
			break
		}
	}
	return results
}
