package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SubTrack/internal/pkg/lifecycle"
	"github.com/ManuelReschke/SubTrack/internal/pkg/recurrence"
)

// SubscriptionController exposes the lifecycle service over JSON.
type SubscriptionController struct {
	service *lifecycle.Service
}

func NewSubscriptionController(service *lifecycle.Service) *SubscriptionController {
	return &SubscriptionController{service: service}
}

type createSubscriptionRequest struct {
	UserID            *uint           `json:"user_id"`
	TeamID            *uint           `json:"team_id"`
	Name              string          `json:"name"`
	Cost              decimal.Decimal `json:"cost"`
	Currency          string          `json:"currency"`
	Frequency         string          `json:"frequency"`
	NextDueDate       string          `json:"next_due_date"`
	ExternalBillingID *string         `json:"external_billing_id"`
}

// versionRequest is the optional body of every mutation. Version 0 skips the
// expected-version check.
type versionRequest struct {
	Version uint `json:"version"`
}

type snoozeRequest struct {
	Version uint `json:"version"`
	Days    int  `json:"days"`
}

type rescheduleRequest struct {
	Version uint   `json:"version"`
	Date    string `json:"date"`
}

func (sc *SubscriptionController) HandleCreate(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: %v", err)
	}
	due, err := parseDate(req.NextDueDate)
	if err != nil {
		return errorResponse(c, err)
	}
	sub, err := sc.service.Create(c.UserContext(), lifecycle.NewSubscription{
		UserID:            req.UserID,
		TeamID:            req.TeamID,
		Name:              req.Name,
		Cost:              req.Cost,
		Currency:          req.Currency,
		Frequency:         recurrence.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency))),
		NextDueDate:       due,
		ExternalBillingID: req.ExternalBillingID,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (sc *SubscriptionController) HandleGet(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorResponse(c, err)
	}
	sub, err := sc.service.Get(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) HandleListForUser(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorResponse(c, err)
	}
	subs, err := sc.service.ListForUser(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"data": subs})
}

func (sc *SubscriptionController) HandleListForTeam(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorResponse(c, err)
	}
	subs, err := sc.service.ListForTeam(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"data": subs})
}

func (sc *SubscriptionController) HandleRenew(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorResponse(c, err)
	}
	var req versionRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return errorResponse(c, err)
	}
	sub, err := sc.service.Renew(c.UserContext(), id, req.Version)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) HandleSnooze(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorResponse(c, err)
	}
	var req snoozeRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return errorResponse(c, err)
	}
	sub, err := sc.service.Snooze(c.UserContext(), id, req.Version, req.Days)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) HandleReschedule(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorResponse(c, err)
	}
	var req rescheduleRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return errorResponse(c, err)
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return errorResponse(c, err)
	}
	sub, err := sc.service.Reschedule(c.UserContext(), id, req.Version, date)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) HandleMarkPaid(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorResponse(c, err)
	}
	var req versionRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return errorResponse(c, err)
	}
	sub, err := sc.service.MarkPaid(c.UserContext(), id, req.Version)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) HandleCancel(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorResponse(c, err)
	}
	var req versionRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return errorResponse(c, err)
	}
	sub, err := sc.service.Cancel(c.UserContext(), id, req.Version)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sub)
}
