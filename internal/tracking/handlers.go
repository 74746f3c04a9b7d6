package tracking

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/riders", authMiddleware, func(c *fiber.Ctx) error {
		riders, err := svc.Riders(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(riders)
	})

	r.Get("/riders/:id/sessions", authMiddleware, func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit"))
		sessions, err := svc.Sessions(c.Context(), c.Params("id"), limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(sessions)
	})

	r.Get("/riders/:id/summary", authMiddleware, func(c *fiber.Ctx) error {
		day, err := parseDay(c.Query("date"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		summary, err := svc.Summary(c.Context(), c.Params("id"), day)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(summary)
	})

	r.Get("/riders/:id/path", authMiddleware, func(c *fiber.Ctx) error {
		day, err := parseDay(c.Query("date"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		path, err := svc.Path(c.Context(), c.Params("id"), day)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(path)
	})
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	return time.ParseInLocation("2006-01-02", raw, time.Local)
}
