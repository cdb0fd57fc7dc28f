package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/JAY4T/kaakazini/internal/apperr"
)

var validate = validator.New()

// Validate runs struct tag validation and returns an ErrValidation listing
// every failed field.
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %s", apperr.ErrValidation, strings.Join(FormatValidationErrors(ve), "; "))
		}
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

// FormatValidationErrors formats validation errors from validator/v10.
func FormatValidationErrors(errs validator.ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", strings.ToLower(e.Field()), e.Tag())
		if e.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, e.Param())
		}
		out = append(out, msg)
	}
	return out
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	var fe *fiber.Error
	var up *apperr.Upstream
	switch {
	case errors.As(err, &up):
		if up.Rejected {
			return fiber.StatusBadRequest
		}
		return fiber.StatusInternalServerError
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, apperr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, apperr.ErrRateLimited):
		return fiber.StatusTooManyRequests
	}
	return fiber.StatusInternalServerError
}

// Fail writes the error body. Server errors hide their cause.
func Fail(c *fiber.Ctx, err error) error {
	status := StatusOf(err)
	body := fiber.Map{"success": false, "error": err.Error()}

	var up *apperr.Upstream
	if errors.As(err, &up) {
		body["error"] = up.Message
		if up.Message == "" {
			body["error"] = up.Provider + " request failed"
		}
		body["detail"] = up.Detail
		if len(up.Response) > 0 {
			body["response"] = up.Response
		}
		return c.Status(status).JSON(body)
	}
	if status == fiber.StatusInternalServerError {
		body["error"] = "internal server error"
	}
	return c.Status(status).JSON(body)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

// ErrorHandler is the fiber-wide fallback for errors returned by handlers
// and middleware.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return Fail(c, err)
}
