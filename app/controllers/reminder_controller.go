package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubTrack/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/SubTrack/internal/pkg/reminder"
)

// ReminderController triggers dispatch runs and reports counters.
type ReminderController struct {
	dispatcher *reminder.Dispatcher
	counter    *counter.Counter
}

func NewReminderController(dispatcher *reminder.Dispatcher, c *counter.Counter) *ReminderController {
	return &ReminderController{dispatcher: dispatcher, counter: c}
}

type dispatchRequest struct {
	LookaheadDays *int `json:"lookahead_days"`
}

// HandleDispatch runs the configured intervals, or a single window when
// lookahead_days is given. On failure the partial summary is returned under
// "summary" next to the error.
func (rc *ReminderController) HandleDispatch(c *fiber.Ctx) error {
	var req dispatchRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return errorResponse(c, err)
	}
	var (
		sum reminder.Summary
		err error
	)
	if req.LookaheadDays != nil {
		sum, err = rc.dispatcher.RunLookahead(c.UserContext(), *req.LookaheadDays)
	} else {
		sum, err = rc.dispatcher.Run(c.UserContext())
	}
	if err != nil {
		return errorResponseWith(c, err, fiber.Map{"summary": sum})
	}
	return c.JSON(sum)
}

func (rc *ReminderController) HandleStats(c *fiber.Ctx) error {
	stats, err := rc.counter.Stats(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(stats)
}
