package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/deskpal/deskpal/internal/logging"
	"github.com/deskpal/deskpal/internal/store"
)

// Generator produces one in-character message for a message kind and a set
// of contextual variables.
type Generator interface {
	Generate(ctx context.Context, kind Kind, vars map[string]string) (string, error)
}

// requestTimeout bounds a single generation call.
const requestTimeout = 30 * time.Second

// Client generates messages through an OpenAI-compatible chat-completions
// endpoint, reading the endpoint settings and the active character from the
// store on every call so settings edits apply immediately.
type Client struct {
	store     *store.Store
	templates *Templates
	now       func() time.Time
}

// NewClient creates a generator bound to the character store.
func NewClient(st *store.Store, templates *Templates, now func() time.Time) *Client {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if now == nil {
		now = time.Now
	}
	return &Client{store: st, templates: templates, now: now}
}

// Generate implements Generator.
func (c *Client) Generate(ctx context.Context, kind Kind, vars map[string]string) (string, error) {
	baseURL, apiKey, model, maxHistory := c.store.Settings()
	if apiKey == "" || baseURL == "" {
		return "", errors.New("API base URL and key are not configured")
	}
	if maxHistory <= 0 {
		maxHistory = 10
	}

	ch, err := c.store.CurrentSnapshot()
	if err != nil {
		return "", err
	}

	now := c.now()
	merged := c.standardVars(ch, now)
	for k, v := range vars {
		merged[k] = v
	}

	task := c.templates.Render(kind, merged)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(c.systemPrompt(ch, merged, now)),
	}
	if kind == KindManualChat {
		messages = append(messages, historyMessages(ch.ChatHistory, maxHistory)...)
	}
	messages = append(messages, openai.UserMessage(task))

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(normalizeBaseURL(baseURL)),
	)

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	logging.Debugf("generating %s message via %s", kind, model)
	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("model returned empty text")
	}
	return content, nil
}

func (c *Client) standardVars(ch *store.Character, now time.Time) map[string]string {
	hour := now.Hour()
	timeOfDay := "evening"
	switch {
	case hour >= 5 && hour < 12:
		timeOfDay = "morning"
	case hour >= 12 && hour < 18:
		timeOfDay = "afternoon"
	}
	userName := ch.UserName
	if userName == "" {
		userName = "User"
	}
	return map[string]string{
		"char":        ch.Name,
		"user":        userName,
		"persona":     ch.Persona,
		"cups":        strconv.FormatFloat(ch.CupsDrunkToday, 'f', -1, 64),
		"target":      strconv.FormatFloat(ch.DailyTargetCups, 'f', -1, 64),
		"time_of_day": timeOfDay,
		"date":        store.DateString(now),
		"weekday":     store.Weekday(now),
	}
}

// systemPrompt frames the roleplay: persona, who the user is, and today's
// anniversaries when there are any. Flow-specific context (character switch
// details) arrives through the extra_context variable.
func (c *Client) systemPrompt(ch *store.Character, vars map[string]string, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are roleplaying as a desktop companion.\n")
	fmt.Fprintf(&b, "Character name: %s\n", ch.Name)
	fmt.Fprintf(&b, "Persona: %s\n", ch.Persona)
	fmt.Fprintf(&b, "User: %s\n", vars["user"])
	if ch.UserIdentity != "" {
		fmt.Fprintf(&b, "User identity: %s\n", ch.UserIdentity)
	}

	if notes := todayAnniversaries(ch, now); len(notes) > 0 {
		b.WriteString("\nToday's special dates, weave them in where natural:\n")
		for _, n := range notes {
			b.WriteString("- " + n + "\n")
		}
	}
	if extra := vars["extra_context"]; extra != "" {
		b.WriteString("\n" + extra + "\n")
	}

	b.WriteString("\nStay in character and keep replies short and conversational.")
	return b.String()
}

func todayAnniversaries(ch *store.Character, now time.Time) []string {
	today := now.Format("01-02")
	var notes []string
	for _, a := range ch.Anniversaries {
		if a.Date != today {
			continue
		}
		note := a.Title
		if a.Type == "birthday" {
			note = "today is " + a.Title + "'s birthday"
		}
		if a.Notes != "" {
			note += " (" + a.Notes + ")"
		}
		notes = append(notes, note)
	}
	return notes
}

func historyMessages(history []store.ChatMessage, maxHistory int) []openai.ChatCompletionMessageParamUnion {
	// The latest user turn is the task input itself, not history.
	if n := len(history); n > 0 && history[n-1].Role == "user" {
		history = history[:n-1]
	}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, msg := range history {
		if msg.Role == "user" {
			out = append(out, openai.UserMessage(msg.Content))
		} else {
			out = append(out, openai.AssistantMessage(msg.Content))
		}
	}
	return out
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSuffix(strings.TrimSpace(base), "/")
	// Accept both ".../v1" and a bare host the way the settings dialog
	// historically allowed.
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

// ShortError renders err as a short user-visible string, truncated so a
// failure never floods the speech bubble.
func ShortError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	runes := []rune(msg)
	if len(runes) > 50 {
		msg = string(runes[:50]) + "..."
	}
	return msg
}
