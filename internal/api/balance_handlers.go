package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// handleDistributorBalance reports the PULPA balance of the server-held
// distributor wallet. Admin tooling polls this to know when to top up.
func (s *APIServer) handleDistributorBalance(c *fiber.Ctx) error {
	balance, err := s.token.GetDistributorBalance(c.Context())
	if err != nil {
		s.logger.Error("failed to query distributor balance", zap.Error(err))
		return c.Status(502).JSON(map[string]string{
			"error": "failed to query distributor balance",
		})
	}

	return c.JSON(map[string]interface{}{
		"address": balance.Address,
		"balance": balance.Balance,
	})
}
