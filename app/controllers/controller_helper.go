package controllers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
)

// errorResponse writes {"error": code, "message": text} with the status for err's kind.
func errorResponse(c *fiber.Ctx, err error) error {
	return errorResponseWith(c, err, nil)
}

// errorResponseWith adds extra fields to the error body.
func errorResponseWith(c *fiber.Ctx, err error, extra fiber.Map) error {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		message = "Internal server error"
	}
	body := fiber.Map{"error": apperr.Code(err), "message": message}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, format string, args ...interface{}) error {
	return errorResponse(c, fmt.Errorf(format+": %w", append(args, apperr.ErrInvalidArgument)...))
}

func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	raw := strings.TrimSpace(c.Params(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, apperr.ErrInvalidArgument)
	}
	return uint(id), nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", raw, apperr.ErrInvalidArgument)
	}
	return t, nil
}

// parseOptionalBody decodes a JSON body when one was sent.
func parseOptionalBody(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, apperr.ErrInvalidArgument)
	}
	return nil
}
