package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/app/repository"
)

// AdminDmRuleController lets operators manage DM automation rules.
type AdminDmRuleController struct {
	rules        repository.DmAutomationRepository
	integrations repository.IntegrationRepository
}

func NewAdminDmRuleController(rules repository.DmAutomationRepository, integrations repository.IntegrationRepository) *AdminDmRuleController {
	return &AdminDmRuleController{rules: rules, integrations: integrations}
}

// dmRuleRequest is the body of create and update calls. Update replaces
// every field.
type dmRuleRequest struct {
	IntegrationID uint   `json:"integration_id"`
	PostID        string `json:"post_id"`
	TriggerType   string `json:"trigger_type"`
	MatchType     string `json:"match_type"`
	TriggerText   string `json:"trigger_text"`
	DmResponse    string `json:"dm_response"`
	CommentReply  string `json:"comment_reply"`
	IsActive      *bool  `json:"is_active"`
}

func (r *dmRuleRequest) apply(rule *models.DmAutomationRule) {
	rule.IntegrationID = r.IntegrationID
	rule.PostID = r.PostID
	rule.TriggerType = r.TriggerType
	if rule.TriggerType == "" {
		rule.TriggerType = models.TriggerTypeComment
	}
	rule.MatchType = r.MatchType
	if rule.MatchType == "" {
		rule.MatchType = models.MatchTypeExactText
	}
	rule.TriggerText = r.TriggerText
	rule.DmResponse = r.DmResponse
	rule.CommentReply = r.CommentReply
	rule.IsActive = r.IsActive == nil || *r.IsActive
}

// HandleList lists rules, oldest first.
func (rc *AdminDmRuleController) HandleList(c *fiber.Ctx) error {
	filter := repository.DmRuleFilter{
		PostID:      c.Query("post_id"),
		TriggerType: c.Query("trigger_type"),
		Offset:      c.QueryInt("offset", 0),
		Limit:       repository.ClampLimit(c.QueryInt("limit", 50)),
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if id := c.QueryInt("integration_id", 0); id > 0 {
		filter.IntegrationID = uint(id)
	}

	rules, total, err := rc.rules.List(c.UserContext(), filter)
	if err != nil {
		log.Errorf("[Admin] List dm rules failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{
		"items":  rules,
		"total":  total,
		"offset": filter.Offset,
		"limit":  filter.Limit,
	})
}

// HandleGet returns one rule.
func (rc *AdminDmRuleController) HandleGet(c *fiber.Ctx) error {
	rule, status, body := rc.loadRule(c)
	if rule == nil {
		return c.Status(status).JSON(body)
	}
	return c.JSON(rule)
}

// HandleCreate stores a new rule.
func (rc *AdminDmRuleController) HandleCreate(c *fiber.Ctx) error {
	var req dmRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid body"})
	}

	rule := &models.DmAutomationRule{}
	req.apply(rule)
	if status, body := rc.check(c, rule); body != nil {
		return c.Status(status).JSON(body)
	}
	if err := rc.rules.Create(c.UserContext(), rule); err != nil {
		log.Errorf("[Admin] Create dm rule failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	log.Infof("[Admin] DM rule %d created for integration %d (%s)", rule.ID, rule.IntegrationID, rule.TriggerType)
	return c.Status(fiber.StatusCreated).JSON(rule)
}

// HandleUpdate replaces the editable fields of a rule.
func (rc *AdminDmRuleController) HandleUpdate(c *fiber.Ctx) error {
	rule, status, body := rc.loadRule(c)
	if rule == nil {
		return c.Status(status).JSON(body)
	}

	var req dmRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid body"})
	}
	req.apply(rule)
	if status, body := rc.check(c, rule); body != nil {
		return c.Status(status).JSON(body)
	}

	err := rc.rules.Update(c.UserContext(), rule)
	if repository.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	if err != nil {
		log.Errorf("[Admin] Update dm rule %d failed: %v", rule.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	updated, err := rc.rules.GetByID(c.UserContext(), rule.ID)
	if err != nil {
		log.Errorf("[Admin] Reload dm rule %d failed: %v", rule.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	log.Infof("[Admin] DM rule %d updated", rule.ID)
	return c.JSON(updated)
}

// HandleDelete removes a rule. Events already processed keep its id in
// their result.
func (rc *AdminDmRuleController) HandleDelete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid id"})
	}

	ok, err := rc.rules.Delete(c.UserContext(), uint(id))
	if err != nil {
		log.Errorf("[Admin] Delete dm rule %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}

	log.Infof("[Admin] DM rule %d deleted", id)
	return c.SendStatus(fiber.StatusNoContent)
}

// check validates rule and the integration it points at. A nil body means
// the rule is acceptable.
func (rc *AdminDmRuleController) check(c *fiber.Ctx, rule *models.DmAutomationRule) (int, fiber.Map) {
	if err := rule.Validate(); err != nil {
		return fiber.StatusUnprocessableEntity, fiber.Map{"error": "validation_failed", "message": validationText(err)}
	}
	switch {
	case rule.TriggerType == models.TriggerTypeComment && rule.PostID == "":
		return fiber.StatusUnprocessableEntity, fiber.Map{"error": "validation_failed", "message": "comment rules need a post_id"}
	case rule.TriggerType == models.TriggerTypeDM && rule.MatchType != models.MatchTypeExactText:
		return fiber.StatusUnprocessableEntity, fiber.Map{"error": "validation_failed", "message": "dm rules only support EXACT_TEXT matching"}
	}

	_, err := rc.integrations.GetByID(c.UserContext(), rule.IntegrationID)
	if repository.IsNotFound(err) {
		return fiber.StatusUnprocessableEntity, fiber.Map{"error": "validation_failed", "message": "unknown integration_id"}
	}
	if err != nil {
		log.Errorf("[Admin] Load integration %d failed: %v", rule.IntegrationID, err)
		return fiber.StatusInternalServerError, fiber.Map{"error": "internal_server_error"}
	}
	return 0, nil
}

func (rc *AdminDmRuleController) loadRule(c *fiber.Ctx) (*models.DmAutomationRule, int, fiber.Map) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, fiber.StatusBadRequest, fiber.Map{"error": "bad_request", "message": "invalid id"}
	}
	rule, err := rc.rules.GetByID(c.UserContext(), uint(id))
	if repository.IsNotFound(err) {
		return nil, fiber.StatusNotFound, fiber.Map{"error": "not_found"}
	}
	if err != nil {
		log.Errorf("[Admin] Load dm rule %d failed: %v", id, err)
		return nil, fiber.StatusInternalServerError, fiber.Map{"error": "internal_server_error"}
	}
	return rule, 0, nil
}

// validationText names the first field validator rejected.
func validationText(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fe.Field() + " failed " + fe.Tag()
	}
	return err.Error()
}
