// Package agent asks the LLM for moderation decisions and replies.
package agent

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/internal/pkg/schema"
)

// ErrMalformedResponse means the model answered with text that does not
// match the expected JSON shape. It is transient.
var ErrMalformedResponse = errors.New("agent: malformed model response")

//go:embed schemas/decision.json
var decisionSchemaJSON []byte

//go:embed schemas/reply.json
var replySchemaJSON []byte

var (
	decisionSchema = schema.MustCompile("agent-decision", decisionSchemaJSON)
	replySchema    = schema.MustCompile("agent-reply", replySchemaJSON)
)

// Decider makes the per-comment decisions of the engagement flow.
type Decider interface {
	ShouldDelete(ctx context.Context, platform, comment string) (bool, error)
	ShouldIgnore(ctx context.Context, platform, comment, instructions string) (bool, error)
	Reply(ctx context.Context, platform, comment string, persona *models.Persona) (string, error)
	MatchesIntent(ctx context.Context, platform, comment, intent string) (bool, error)
}

// Agent implements Decider on top of a Generator. Every call is bounded by
// timeout.
type Agent struct {
	llm     Generator
	timeout time.Duration
}

func New(llm Generator, timeout time.Duration) *Agent {
	return &Agent{llm: llm, timeout: timeout}
}

type decisionOutput struct {
	Decision bool   `json:"decision"`
	Reason   string `json:"reason"`
}

type replyOutput struct {
	Reply string `json:"reply"`
}

func (a *Agent) ShouldDelete(ctx context.Context, platform, comment string) (bool, error) {
	system, err := renderPrompt(promptDeleteComment, promptData{PlatformName: platform})
	if err != nil {
		return false, err
	}
	return a.decide(ctx, "delete", system, userPrompt(userPromptDelete, comment))
}

func (a *Agent) ShouldIgnore(ctx context.Context, platform, comment, instructions string) (bool, error) {
	system, err := renderPrompt(promptIgnoreComment, promptData{PlatformName: platform, Instructions: instructions})
	if err != nil {
		return false, err
	}
	return a.decide(ctx, "ignore", system, userPrompt(userPromptIgnore, comment))
}

func (a *Agent) MatchesIntent(ctx context.Context, platform, comment, intent string) (bool, error) {
	system, err := renderPrompt(promptDetectIntent, promptData{PlatformName: platform, Comment: comment, Intent: intent})
	if err != nil {
		return false, err
	}
	return a.decide(ctx, "intent", system, userPrompt(userPromptIntent, comment))
}

func (a *Agent) Reply(ctx context.Context, platform, comment string, persona *models.Persona) (string, error) {
	system, err := renderPrompt(promptCreateReply, promptData{PlatformName: platform, Persona: persona})
	if err != nil {
		return "", err
	}

	raw, err := a.generate(ctx, system, userPrompt(userPromptReply, comment))
	if err != nil {
		return "", err
	}
	var out replyOutput
	if err := decodeOutput(raw, replySchema, &out); err != nil {
		return "", err
	}

	reply := stripQuotes(strings.TrimSpace(out.Reply))
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}
	return reply, nil
}

func (a *Agent) decide(ctx context.Context, kind, system, user string) (bool, error) {
	raw, err := a.generate(ctx, system, user)
	if err != nil {
		return false, err
	}
	var out decisionOutput
	if err := decodeOutput(raw, decisionSchema, &out); err != nil {
		return false, err
	}
	log.Debugf("[Agent] %s decision=%t reason=%q", kind, out.Decision, out.Reason)
	return out.Decision, nil
}

func (a *Agent) generate(ctx context.Context, system, user string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.llm.Generate(ctx, system, user)
}

// decodeOutput validates the model text against s and decodes it into out.
func decodeOutput(raw string, s *schema.Schema, out interface{}) error {
	body := []byte(stripCodeFence(raw))
	if err := s.ValidateJSON(body); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// stripCodeFence removes a surrounding ```json fence some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func stripQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
