// Package main provides the PressGate API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/pressgate/pressgate/pkg/content"
	"github.com/pressgate/pressgate/pkg/eventbus"
	"github.com/pressgate/pressgate/pkg/permissions"
	"github.com/pressgate/pressgate/pkg/persistence"
	"github.com/pressgate/pressgate/pkg/services"
	"github.com/pressgate/pressgate/pkg/web"
	"github.com/pressgate/pressgate/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	cms         *content.Client
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	cms *content.Client,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		cms:         cms,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	resolver := permissions.NewResolver(a.persistence.Permissions(), a.cms, a.cms)
	process := workflow.NewProcess(a.logger, a.persistence.Instances(), resolver, a.cms, a.cms, a.eventBus)

	approvalService := services.NewApproval(a.logger, process, a.persistence.Instances())
	queryService := services.NewQuery(a.logger, a.persistence.Tasks(), a.persistence.Instances(), a.cms, a.cms)

	handlers := web.NewAPIHandlers(approvalService, queryService, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("PressGate API")
	})

	w := app.Group("/workflows")
	w.Post("/", handlers.InitiateWorkflow)
	w.Get("/", handlers.GetInstances)

	t := app.Group("/tasks")
	t.Get("/", handlers.GetAllTasks)
	t.Get("/pending", handlers.GetPendingTasks)
	t.Post("/:id/approve", handlers.ApproveTask)
	t.Post("/:id/reject", handlers.RejectTask)
	t.Post("/:id/cancel", handlers.CancelTask)

	n := app.Group("/nodes")
	n.Get("/:id/tasks", handlers.GetNodeTasks)
	n.Get("/:id/status", handlers.GetNodeStatus)

	app.Get("/users/:id/flows", handlers.GetUserFlows)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
