package session

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes wires riderd's local duty surface.
func RegisterRoutes(r fiber.Router, ctl *Controller) {
	r.Post("/online", func(c *fiber.Ctx) error {
		var req GoOnlineCommand
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		if req.Name == "" {
			req.Name = ctl.SavedName()
		}

		sess, err := ctl.GoOnline(c.Context(), req.Name)
		if err != nil {
			if errors.Is(err, ErrValidation) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return c.JSON(sess)
	})

	r.Post("/offline", func(c *fiber.Ctx) error {
		sess, err := ctl.GoOffline(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(sess)
	})

	r.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"session":     ctl.Current(),
			"diagnostics": ctl.Diagnostics(),
		})
	})

	r.Get("/diagnostics", func(c *fiber.Ctx) error {
		return c.JSON(ctl.Probe(c.Context()))
	})
}
