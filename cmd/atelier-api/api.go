// Package main provides the Atelier API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/voxmuse/atelier/pkg/approval"
	"github.com/voxmuse/atelier/pkg/eventbus"
	"github.com/voxmuse/atelier/pkg/ledger"
	"github.com/voxmuse/atelier/pkg/solvency"
	"github.com/voxmuse/atelier/pkg/statestore"
	"github.com/voxmuse/atelier/pkg/web"
)

type API struct {
	logger   *slog.Logger
	store    statestore.StateStore
	bus      eventbus.EventPublisher
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, store statestore.StateStore, bus eventbus.EventPublisher) *API {
	return &API{
		logger:   logger,
		store:    store,
		bus:      bus,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	led := ledger.NewLedger(a.store, a.logger)
	guard := solvency.NewGuard(nil, solvency.DefaultConfig(), a.logger)
	gate := approval.NewGate(a.store, a.bus, approval.DefaultConfig(), a.logger)

	handlers := web.NewAPIHandlers(a.store, led, guard, gate, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.store.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Atelier API")
	})

	ap := app.Group("/approvals")
	ap.Get("/", handlers.GetPendingApprovals)
	ap.Post("/:taskID/approve", handlers.ApproveTask)
	ap.Post("/:taskID/reject", handlers.RejectTask)

	acct := app.Group("/accounts/:address")
	acct.Get("/wallet", handlers.GetWallet)
	acct.Get("/history", handlers.GetHistory)
	acct.Get("/summary", handlers.GetFinancialSummary)
	acct.Post("/transactions", handlers.RecordTransaction)

	app.Get("/mood", handlers.GetMood)
	app.Put("/mood", handlers.UpdateMood)

	app.Use(web.NotFoundHandler)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
