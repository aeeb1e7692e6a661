package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fruteroclub/pulpa-distributor/internal/models"
	"github.com/fruteroclub/pulpa-distributor/internal/services"
)

// handleDistribute runs the payout workflow for an approved submission.
// The approval flow in the main app calls this once per approval; repeat
// calls short-circuit on the existing ledger row.
func (s *APIServer) handleDistribute(c *fiber.Ctx) error {
	var req services.DistributeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(map[string]string{
			"error": "invalid request body",
		})
	}

	if err := s.validator.Struct(req); err != nil {
		return c.Status(400).JSON(map[string]string{
			"error": err.Error(),
		})
	}

	result := s.distribution.DistributeSubmissionReward(c.Context(), req)
	if !result.Success && result.Error != "" {
		s.logger.Warn("distribution request failed",
			zap.String("correlation_id", getCorrelationID(c)),
			zap.String("submission_id", req.SubmissionID),
			zap.String("error", result.Error),
		)
		// An in-flight duplicate is a conflict, not a processing failure.
		if result.Status == string(models.DistributionStatusProcessing) {
			return c.Status(409).JSON(result)
		}
		return c.Status(422).JSON(result)
	}

	return c.JSON(result)
}

// handleListDistributions returns the payout history, newest first.
func (s *APIServer) handleListDistributions(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 0 {
		return c.Status(400).JSON(map[string]string{
			"error": "invalid limit",
		})
	}
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		return c.Status(400).JSON(map[string]string{
			"error": "invalid offset",
		})
	}

	records, err := s.ledger.List(limit, offset)
	if err != nil {
		s.logger.Error("failed to list distributions", zap.Error(err))
		return c.Status(500).JSON(map[string]string{
			"error": "failed to list distributions",
		})
	}

	return c.JSON(map[string]interface{}{
		"distributions": records,
		"limit":         limit,
		"offset":        offset,
	})
}

// handleGetDistributionsBySubmission returns every payout attempt for one
// submission, including failed ones kept as audit trail.
func (s *APIServer) handleGetDistributionsBySubmission(c *fiber.Ctx) error {
	submissionID := c.Params("submission_id")
	if submissionID == "" {
		return c.Status(400).JSON(map[string]string{
			"error": "submission ID is required",
		})
	}

	records, err := s.ledger.GetBySubmission(submissionID)
	if err != nil {
		s.logger.Error("failed to load distributions",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
		return c.Status(500).JSON(map[string]string{
			"error": "failed to load distributions",
		})
	}
	if len(records) == 0 {
		return c.Status(404).JSON(map[string]string{
			"error": "no distributions for submission",
		})
	}

	return c.JSON(map[string]interface{}{
		"submission_id": submissionID,
		"distributions": records,
	})
}
