// Package engagement runs the moderation and reply flow for one webhook event.
package engagement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/app/repository"
	"github.com/ssq-labs/commentpilot/internal/pkg/agent"
	"github.com/ssq-labs/commentpilot/internal/pkg/meta"
	"github.com/ssq-labs/commentpilot/internal/pkg/webhook"
)

// Actions recorded in a processed row's result.
const (
	ActionSkipped         = "skipped"
	ActionCommentDeleted  = "comment_deleted"
	ActionCommentIgnored  = "comment_ignored"
	ActionReplyPosted     = "reply_posted"
	ActionPendingApproval = "pending_approval"
	ActionDMSent          = "dm_sent"
	ActionNoMatchingRule  = "no_matching_rule"
)

// Outcome is stored as the result of a processed webhook log.
type Outcome struct {
	Action       string `json:"action"`
	Reason       string `json:"reason,omitempty"`
	CommentID    string `json:"comment_id,omitempty"`
	Reply        string `json:"reply,omitempty"`
	DMRuleID     uint   `json:"dm_rule_id,omitempty"`
	DMSent       bool   `json:"dm_sent,omitempty"`
	CommentReply string `json:"comment_reply,omitempty"`
}

// Handler executes claimed comment and message events.
type Handler struct {
	repos    *repository.Repositories
	decider  agent.Decider
	platform meta.Platform
	now      func() time.Time
}

func NewHandler(repos *repository.Repositories, decider agent.Decider, platform meta.Platform) *Handler {
	return &Handler{
		repos:    repos,
		decider:  decider,
		platform: platform,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle implements webhook.Handler.
func (h *Handler) Handle(ctx context.Context, row *models.WebhookLog) (interface{}, error) {
	switch row.EventType {
	case models.EventTypeComment:
		var ev meta.CommentEvent
		if err := json.Unmarshal(row.Payload, &ev); err != nil {
			return nil, webhook.Permanentf("decode comment payload: %v", err)
		}
		return h.handleComment(ctx, row, &ev)
	case models.EventTypeMessage:
		var ev meta.MessageEvent
		if err := json.Unmarshal(row.Payload, &ev); err != nil {
			return nil, webhook.Permanentf("decode message payload: %v", err)
		}
		return h.handleMessage(ctx, row, &ev)
	}
	return nil, webhook.Permanentf("unsupported event type %q", row.EventType)
}

func (h *Handler) handleComment(ctx context.Context, row *models.WebhookLog, ev *meta.CommentEvent) (*Outcome, error) {
	integration, user, err := h.resolveAccount(ctx, row.IntegrationID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return skipped("user is not active"), nil
	}
	if ev.AuthorID == integration.PlatformUserID {
		return skipped("comment from the account itself"), nil
	}
	if ev.MediaID == "" {
		return nil, webhook.Permanentf("comment %s has no media id", ev.CommentID)
	}

	post, err := h.repos.Post.GetOrCreate(ctx, ev.MediaID, integration.ID)
	if err != nil {
		return nil, fmt.Errorf("load post %s: %w", ev.MediaID, err)
	}

	// a retried row resumes after the reply it already posted
	if out := resumeOutcome(row, ev.CommentID); out != nil {
		log.Infof("[Engagement] Resuming comment %s after %s", ev.CommentID, out.Action)
		if err := h.applyCommentRules(ctx, row, integration, post, ev, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	if !post.EngagementEnabled {
		return skipped("post engagement not enabled"), nil
	}
	if !post.WithinEngagementWindow(h.now()) {
		return skipped("outside engagement window"), nil
	}

	persona, err := h.repos.Persona.GetActiveByUserID(ctx, user.ID)
	if repository.IsNotFound(err) {
		return nil, webhook.Permanentf("user %d has no active persona", user.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("load persona: %w", err)
	}

	platform := integration.Platform
	token := integration.AccessToken

	remove, err := h.decider.ShouldDelete(ctx, platform, ev.Text)
	if err != nil {
		return nil, fmt.Errorf("delete decision: %w", err)
	}
	if remove {
		if err := h.platform.DeleteComment(ctx, ev.CommentID, token); err != nil {
			return nil, fmt.Errorf("delete comment %s: %w", ev.CommentID, err)
		}
		log.Infof("[Engagement] Deleted comment %s on %s", ev.CommentID, ev.MediaID)
		return &Outcome{Action: ActionCommentDeleted, CommentID: ev.CommentID}, nil
	}

	ignore, err := h.decider.ShouldIgnore(ctx, platform, ev.Text, post.IgnoreInstructions)
	if err != nil {
		return nil, fmt.Errorf("ignore decision: %w", err)
	}
	if ignore {
		return &Outcome{Action: ActionCommentIgnored, CommentID: ev.CommentID}, nil
	}

	reply, err := h.decider.Reply(ctx, platform, ev.Text, persona)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	out := &Outcome{Action: ActionReplyPosted, CommentID: ev.CommentID, Reply: reply}
	if user.ApprovalNeeded {
		out.Action = ActionPendingApproval
	} else if err := h.platform.ReplyToComment(ctx, ev.CommentID, reply, token); err != nil {
		return nil, fmt.Errorf("reply to comment %s: %w", ev.CommentID, err)
	}
	if err := h.checkpoint(ctx, row, out); err != nil {
		return nil, err
	}

	if err := h.applyCommentRules(ctx, row, integration, post, ev, out); err != nil {
		return nil, err
	}
	return out, nil
}

// applyCommentRules sends the DM of the first matching comment rule. When out
// already names a rule from an earlier attempt, only that rule's remaining
// steps run.
func (h *Handler) applyCommentRules(ctx context.Context, row *models.WebhookLog, integration *models.Integration, post *models.Post, ev *meta.CommentEvent, out *Outcome) error {
	rules, err := h.repos.DmAutomation.ListActiveForPost(ctx, integration.ID, post.PostID)
	if err != nil {
		return fmt.Errorf("load dm rules: %w", err)
	}

	for i := range rules {
		rule := &rules[i]
		if out.DMSent {
			if rule.ID != out.DMRuleID {
				continue
			}
		} else {
			matched, err := h.matchComment(ctx, integration.Platform, rule, ev.Text)
			if err != nil {
				return err
			}
			if !matched {
				continue
			}

			if err := h.platform.SendDM(ctx, ev.AuthorID, rule.DmResponse, integration.AccessToken); err != nil {
				return fmt.Errorf("send dm for rule %d: %w", rule.ID, err)
			}
			out.DMRuleID = rule.ID
			out.DMSent = true
			if err := h.checkpoint(ctx, row, out); err != nil {
				return err
			}
		}

		if rule.CommentReply != "" && out.CommentReply == "" {
			if err := h.platform.ReplyToComment(ctx, ev.CommentID, rule.CommentReply, integration.AccessToken); err != nil {
				return fmt.Errorf("reply for rule %d: %w", rule.ID, err)
			}
			out.CommentReply = rule.CommentReply
		}
		log.Infof("[Engagement] Rule %d matched comment %s", rule.ID, ev.CommentID)
		return nil
	}
	return nil
}

// checkpoint stores out as the row's partial result. It fails when another
// attempt took over the row, which stops this one before its next side
// effect.
func (h *Handler) checkpoint(ctx context.Context, row *models.WebhookLog, out *Outcome) error {
	data, err := json.Marshal(out)
	if err != nil {
		return webhook.Permanentf("encode progress: %v", err)
	}
	ok, err := h.repos.WebhookLog.SaveProgress(ctx, row.ID, row.ClaimToken, data)
	if err != nil {
		log.Errorf("[Engagement] Failed to save progress for webhook log %d: %v", row.ID, err)
		return nil
	}
	if !ok {
		return fmt.Errorf("webhook log %d: attempt superseded", row.ID)
	}
	return nil
}

// resumeOutcome returns the progress an earlier attempt saved for the same
// comment, if it got as far as the reply.
func resumeOutcome(row *models.WebhookLog, commentID string) *Outcome {
	if len(row.Result) == 0 {
		return nil
	}
	var out Outcome
	if err := json.Unmarshal(row.Result, &out); err != nil {
		return nil
	}
	if out.CommentID != commentID {
		return nil
	}
	switch out.Action {
	case ActionReplyPosted, ActionPendingApproval:
		return &out
	}
	return nil
}

func (h *Handler) matchComment(ctx context.Context, platform string, rule *models.DmAutomationRule, text string) (bool, error) {
	switch rule.MatchType {
	case models.MatchTypeExactText:
		return rule.MatchesText(text), nil
	case models.MatchTypeAIIntent:
		ok, err := h.decider.MatchesIntent(ctx, platform, text, rule.TriggerText)
		if err != nil {
			return false, fmt.Errorf("intent match for rule %d: %w", rule.ID, err)
		}
		return ok, nil
	}
	return false, nil
}

func (h *Handler) handleMessage(ctx context.Context, row *models.WebhookLog, ev *meta.MessageEvent) (*Outcome, error) {
	integration, _, err := h.resolveAccount(ctx, row.IntegrationID)
	if err != nil {
		return nil, err
	}
	if ev.SenderID == integration.PlatformUserID {
		return skipped("message from the account itself"), nil
	}

	rules, err := h.repos.DmAutomation.ListActiveByTrigger(ctx, integration.ID, models.TriggerTypeDM)
	if err != nil {
		return nil, fmt.Errorf("load dm rules: %w", err)
	}
	for i := range rules {
		rule := &rules[i]
		if !rule.MatchesText(ev.Text) {
			continue
		}
		if err := h.platform.SendDM(ctx, ev.SenderID, rule.DmResponse, integration.AccessToken); err != nil {
			return nil, fmt.Errorf("send dm for rule %d: %w", rule.ID, err)
		}
		log.Infof("[Engagement] Rule %d answered message %s", rule.ID, ev.MID)
		return &Outcome{Action: ActionDMSent, DMRuleID: rule.ID, DMSent: true}, nil
	}
	return &Outcome{Action: ActionNoMatchingRule}, nil
}

// resolveAccount loads the integration and its owner. Missing rows and
// expired tokens are permanent.
func (h *Handler) resolveAccount(ctx context.Context, integrationID uint) (*models.Integration, *models.User, error) {
	integration, err := h.repos.Integration.GetByID(ctx, integrationID)
	if repository.IsNotFound(err) {
		return nil, nil, webhook.Permanentf("integration %d not found", integrationID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load integration %d: %w", integrationID, err)
	}
	if !integration.HasValidToken() {
		return nil, nil, webhook.Permanentf("integration %d access token expired", integrationID)
	}

	user, err := h.repos.User.GetByID(ctx, integration.UserID)
	if repository.IsNotFound(err) {
		return nil, nil, webhook.Permanentf("user %d not found", integration.UserID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load user %d: %w", integration.UserID, err)
	}
	return integration, user, nil
}

func skipped(reason string) *Outcome {
	return &Outcome{Action: ActionSkipped, Reason: reason}
}
