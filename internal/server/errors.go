package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"fairplay/internal/fault"
)

var statusByKind = map[fault.Kind]int{
	fault.KindValidation:          fiber.StatusBadRequest,
	fault.KindInsufficientBalance: fiber.StatusPaymentRequired,
	fault.KindState:               fiber.StatusConflict,
	fault.KindIntegrity:           fiber.StatusInternalServerError,
	fault.KindPersistence:         fiber.StatusInternalServerError,
	fault.KindNotFound:            fiber.StatusNotFound,
}

// errorHandler renders every handler error as {"error": code, "message": text}.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := strings.ToUpper(strings.ReplaceAll(http.StatusText(fe.Code), " ", "_"))
		return c.Status(fe.Code).JSON(fiber.Map{"error": code, "message": fe.Message})
	}

	var de *fault.Error
	if !errors.As(err, &de) {
		log.Printf("[SERVER] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "INTERNAL",
			"message": "internal error",
		})
	}

	status := statusByKind[de.Kind]
	if status == 0 {
		status = fiber.StatusInternalServerError
	}
	if status >= fiber.StatusInternalServerError {
		log.Printf("[SERVER] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": de.Code, "message": de.Message})
}
