package api

import (
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"github.com/fruteroclub/pulpa-distributor/internal/services"
)

// APIServer exposes the distribution pipeline to the rest of the platform:
// one write endpoint that triggers a payout and read-only endpoints for the
// ledger and the distributor balance.
type APIServer struct {
	app          *fiber.App
	distribution services.DistributionService
	ledger       services.LedgerService
	token        services.TokenService
	validator    *validator.Validate
	logger       *zap.Logger
	port         int
}

func NewAPIServer(
	distribution services.DistributionService,
	ledger services.LedgerService,
	token services.TokenService,
	zlog *zap.Logger,
) *APIServer {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Add middleware
	app.Use(cors.New())
	app.Use(correlationID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	server := &APIServer{
		app:          app,
		distribution: distribution,
		ledger:       ledger,
		token:        token,
		validator:    validator.New(),
		logger:       zlog,
	}
	server.setupRoutes()
	return server
}

func (s *APIServer) setupRoutes() {
	s.app.Post("/api/distributions", s.handleDistribute)
	s.app.Get("/api/distributions", s.handleListDistributions)
	s.app.Get("/api/distributions/:submission_id", s.handleGetDistributionsBySubmission)
	s.app.Get("/api/balance", s.handleDistributorBalance)

	// Health check
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
}

// Start starts the server on the given port. Port 0 picks a random
// available port; the assigned port is returned either way.
func (s *APIServer) Start(port int) (int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, fmt.Errorf("failed to bind port: %w", err)
	}

	s.port = listener.Addr().(*net.TCPAddr).Port

	// Close the listener so Fiber can use it
	listener.Close()

	go func() {
		if err := s.app.Listen(fmt.Sprintf(":%d", s.port)); err != nil {
			s.logger.Error("API server stopped", zap.Error(err))
		}
	}()

	return s.port, nil
}

func (s *APIServer) Shutdown() error {
	return s.app.Shutdown()
}

func (s *APIServer) GetPort() int {
	return s.port
}

// App exposes the fiber app for handler tests.
func (s *APIServer) App() *fiber.App {
	return s.app
}
