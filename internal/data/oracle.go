package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
	"github.com/trihan96/FunPayServer/internal/biz/repo"
)

const (
	// noAnswerSentinel is what the model outputs when the FAQ does not
	// cover the question
	noAnswerSentinel = "NO_ANSWER"

	// maxChunkLength is the transport-safe message size
	maxChunkLength = 750

	oracleTimeout      = 30 * time.Second
	maxHistoryInPrompt = 10
)

// oracleClient implements repo.OracleRepo over an OpenAI-compatible API
type oracleClient struct {
	client *openai.Client
	model  string
	rules  repo.RuleRepo
	log    zerolog.Logger
}

// NewOracleClient creates the FAQ oracle. baseURL may point at any
// OpenAI-compatible endpoint; model defaults to gpt-4o-mini.
func NewOracleClient(apiKey, baseURL, model string, rules repo.RuleRepo, log zerolog.Logger) repo.OracleRepo {
	if model == "" {
		model = "gpt-4o-mini"
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &oracleClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
		rules:  rules,
		log:    log.With().Str("component", "oracle").Logger(),
	}
}

// Answer queries the model with the FAQ knowledge and the user's transcript.
// An empty string means the oracle has nothing to say.
func (c *oracleClient) Answer(ctx context.Context, question, userName string, history []domain.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: c.buildSystemPrompt(ctx)},
	}

	if len(history) > maxHistoryInPrompt {
		history = history[len(history)-maxHistoryInPrompt:]
	}
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Sender == domain.SenderBot {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Text})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" || strings.HasPrefix(answer, noAnswerSentinel) {
		c.log.Debug().Str("user", userName).Msg("no answer for question")
		return "", nil
	}
	return answer, nil
}

// buildSystemPrompt assembles the seller FAQ into the system role. A failed
// FAQ load degrades to an empty knowledge section rather than an error.
func (c *oracleClient) buildSystemPrompt(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString("Ты — помощник продавца на торговой площадке. Отвечай покупателям кратко и вежливо, ")
	sb.WriteString("используя только базу вопросов и ответов ниже.\n")
	sb.WriteString("Если база не покрывает вопрос, ответь ровно: " + noAnswerSentinel + "\n\n")
	sb.WriteString("## База знаний\n")

	entries, err := c.rules.FAQEntries(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to load faq entries")
	}
	for _, entry := range entries {
		sb.WriteString(fmt.Sprintf("В: %s\nО: %s\n\n", entry.Question, entry.Answer))
	}
	return sb.String()
}

// Chunk splits a long answer into transport-safe pieces. Splitting happens
// at line boundaries where possible to preserve formatting; a single
// overlong line is hard-split.
func (c *oracleClient) Chunk(text string) []string {
	if len([]rune(text)) <= maxChunkLength {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentLen = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		lineRunes := []rune(line)

		if currentLen+len(lineRunes)+1 > maxChunkLength {
			flush()
		}

		for len(lineRunes) > maxChunkLength {
			chunks = append(chunks, string(lineRunes[:maxChunkLength]))
			lineRunes = lineRunes[maxChunkLength:]
		}

		if currentLen > 0 {
			current.WriteString("\n")
			currentLen++
		}
		current.WriteString(string(lineRunes))
		currentLen += len(lineRunes)
	}
	flush()

	return chunks
}
