package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

// NewApp builds the fiber app with middleware and routes.
func NewApp(h *ApplicationHandler, log *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "assembly-engine",
		ErrorHandler: errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(RequestLogger(log))

	app.Get("/health", h.Health)

	apiV1 := app.Group("/api/v1")
	renders := apiV1.Group("/renders")
	renders.Post("", h.CreateRender)
	renders.Get("", h.ListRenders)
	renders.Get("/:id", h.GetRender)
	renders.Get("/:id/manifest", h.GetManifest)
	renders.Post("/:id/regenerate", h.RegenerateRender)

	return app
}

func errorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.WithError(err).WithField("request_id", RequestID(c)).Error("unhandled error")
			return RespondWithError(c, code, "internal server error")
		}
		return RespondWithError(c, code, err.Error())
	}
}
