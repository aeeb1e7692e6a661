package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fruteroclub/pulpa-distributor/internal/models"
	"github.com/fruteroclub/pulpa-distributor/internal/pulpa"
	"github.com/fruteroclub/pulpa-distributor/internal/utils"
)

// DistributeRequest carries everything the approval flow knows about a
// reward: which submission earned it, who earned it, and who approved it.
type DistributeRequest struct {
	SubmissionID        string `json:"submission_id" validate:"required"`
	ActivityID          string `json:"activity_id" validate:"required"`
	UserID              string `json:"user_id" validate:"required"`
	PulpaAmount         string `json:"pulpa_amount" validate:"required"`
	DistributedByUserID string `json:"distributed_by_user_id" validate:"required"`
}

// DistributeResult is the structured outcome returned to callers. The
// orchestrator never lets an internal error escape as a panic or a bare
// error; everything maps into this shape.
type DistributeResult struct {
	Success         bool   `json:"success"`
	DistributionID  uint   `json:"distribution_id,omitempty"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	Status          string `json:"status,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ErrDistributionInProgress is reported when a payout for the submission is
// still in flight, so the caller can tell a live duplicate from a failure.
var ErrDistributionInProgress = errors.New("distribution already in progress for submission")

// DistributionService runs the payout workflow: duplicate guard, wallet
// resolution, ledger row lifecycle, broadcast, submission status flip and
// the detached confirmation watch.
type DistributionService interface {
	DistributeSubmissionReward(ctx context.Context, req DistributeRequest) DistributeResult
	HasExistingDistribution(submissionID string) (bool, error)
}

type distributionService struct {
	db        *gorm.DB
	ledger    LedgerService
	token     TokenService
	watcher   *WatcherService
	chainID   int64
	validator *validator.Validate
	logger    *zap.Logger

	// Serializes the duplicate check against row creation so two racing
	// calls for the same submission cannot both pass the guard.
	guardMu sync.Mutex
}

func NewDistributionService(
	db *gorm.DB,
	ledger LedgerService,
	token TokenService,
	watcher *WatcherService,
	chainID int64,
	logger *zap.Logger,
) DistributionService {
	return &distributionService{
		db:        db,
		ledger:    ledger,
		token:     token,
		watcher:   watcher,
		chainID:   chainID,
		validator: validator.New(),
		logger:    logger,
	}
}

// DistributeSubmissionReward moves PULPA to the submission author's wallet
// and records the attempt in the ledger. Validation and wallet failures
// return before any row is created; once the chain boundary is reached
// every attempt leaves a completed or failed row behind.
func (s *distributionService) DistributeSubmissionReward(ctx context.Context, req DistributeRequest) DistributeResult {
	if err := s.validator.Struct(req); err != nil {
		return DistributeResult{Error: err.Error()}
	}

	logger := s.logger.With(
		zap.String("submission_id", req.SubmissionID),
		zap.String("user_id", req.UserID),
		zap.String("amount", req.PulpaAmount),
	)

	// Reject bad amounts before touching the ledger or the chain.
	rawAmount, err := pulpa.ToBaseUnits(req.PulpaAmount)
	if err != nil {
		return DistributeResult{Error: err.Error()}
	}
	if rawAmount.Sign() <= 0 {
		return DistributeResult{Error: "pulpa amount must be greater than zero"}
	}

	wallet, err := s.resolveRecipientWallet(req.UserID)
	if err != nil {
		logger.Warn("wallet resolution failed", zap.Error(err))
		return DistributeResult{Error: err.Error()}
	}
	if !utils.IsValidEthereumAddress(wallet) {
		logger.Warn("resolved wallet is not a valid address", zap.String("wallet", wallet))
		return DistributeResult{Error: (&ValidationError{Field: "recipient", Reason: "invalid wallet address"}).Error()}
	}

	// Short-circuit on an existing payout before doing any chain reads.
	// createAttempt re-checks under its lock; this early check just keeps
	// repeat calls cheap.
	if active, err := s.ledger.GetActiveForSubmission(req.SubmissionID); err == nil {
		logger.Info("distribution already exists for submission",
			zap.Uint("distribution_id", active.ID),
			zap.String("status", string(active.Status)),
		)
		return duplicateResult(active)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("duplicate check failed", zap.Error(err))
		return DistributeResult{Error: err.Error()}
	}

	// Pre-flight the distributor balance so an underfunded wallet is
	// rejected before anything reaches the ledger or the chain.
	balance, err := s.token.GetDistributorBalance(ctx)
	if err != nil {
		logger.Error("distributor balance pre-check failed", zap.Error(err))
		return DistributeResult{Error: err.Error()}
	}
	if balance.RawBalance.Cmp(rawAmount) < 0 {
		err := &InsufficientBalanceError{Available: balance.Balance, Required: pulpa.FromBaseUnits(rawAmount)}
		logger.Warn("insufficient distributor balance", zap.Error(err))
		return DistributeResult{Error: err.Error()}
	}

	record, existing, err := s.createAttempt(req, wallet)
	if err != nil {
		logger.Error("failed to create distribution record", zap.Error(err))
		return DistributeResult{Error: err.Error()}
	}
	if existing {
		logger.Info("distribution already exists for submission",
			zap.Uint("distribution_id", record.ID),
			zap.String("status", string(record.Status)),
		)
		return duplicateResult(record)
	}

	transfer, err := s.token.Transfer(ctx, wallet, req.PulpaAmount)
	if err != nil {
		return s.failAttempt(logger, record, err)
	}

	now := time.Now()
	if err := s.ledger.Update(record.ID, map[string]interface{}{
		"status":           models.DistributionStatusCompleted,
		"transaction_hash": transfer.TransactionHash,
		"distributed_at":   &now,
	}); err != nil {
		logger.Error("broadcast succeeded but ledger update failed",
			zap.String("tx_hash", transfer.TransactionHash),
			zap.Error(err),
		)
		return DistributeResult{Error: err.Error()}
	}

	if err := s.markSubmissionDistributed(req.SubmissionID); err != nil {
		// The payout happened; log and keep the result successful so the
		// status flip can be reconciled later.
		logger.Error("failed to update submission status", zap.Error(err))
	}

	s.watcher.Watch(record.ID, transfer.TransactionHash)

	logger.Info("distribution completed",
		zap.Uint("distribution_id", record.ID),
		zap.String("tx_hash", transfer.TransactionHash),
		zap.String("recipient", wallet),
	)

	return DistributeResult{
		Success:         true,
		DistributionID:  record.ID,
		TransactionHash: transfer.TransactionHash,
		Status:          string(models.DistributionStatusCompleted),
	}
}

// duplicateResult maps an existing active row into a caller-facing result:
// a completed row reports the original payout, a processing row reports the
// in-flight attempt as a distinguishable non-failure.
func duplicateResult(record *models.DistributionRecord) DistributeResult {
	result := DistributeResult{
		DistributionID:  record.ID,
		TransactionHash: record.TransactionHash,
		Status:          string(record.Status),
	}
	if record.Status == models.DistributionStatusCompleted {
		result.Success = true
	} else {
		result.Error = ErrDistributionInProgress.Error()
	}
	return result
}

// HasExistingDistribution lets callers skip approval-triggered payout
// attempts that would only short-circuit anyway.
func (s *distributionService) HasExistingDistribution(submissionID string) (bool, error) {
	return s.ledger.ExistsActiveForSubmission(submissionID)
}

// resolveRecipientWallet prefers the platform-managed embedded wallet and
// falls back to the externally linked one.
func (s *distributionService) resolveRecipientWallet(userID string) (string, error) {
	var user models.User
	if err := s.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoWalletConfigured
		}
		return "", err
	}

	if user.AppWallet != "" {
		return user.AppWallet, nil
	}
	if user.ExtWallet != "" {
		return user.ExtWallet, nil
	}
	return "", ErrNoWalletConfigured
}

// createAttempt runs the duplicate guard and inserts the processing row
// under one lock. When an active row already exists it is returned with
// existing=true and nothing is inserted.
func (s *distributionService) createAttempt(req DistributeRequest, wallet string) (*models.DistributionRecord, bool, error) {
	s.guardMu.Lock()
	defer s.guardMu.Unlock()

	active, err := s.ledger.GetActiveForSubmission(req.SubmissionID)
	if err == nil {
		return active, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	record := &models.DistributionRecord{
		SubmissionID:        req.SubmissionID,
		ActivityID:          req.ActivityID,
		UserID:              req.UserID,
		DistributedByUserID: req.DistributedByUserID,
		PulpaAmount:         req.PulpaAmount,
		RecipientWallet:     wallet,
		ChainID:             s.chainID,
		DistributionMethod:  models.DistributionMethodSmartContract,
		Status:              models.DistributionStatusProcessing,
	}
	if err := s.ledger.Create(record); err != nil {
		return nil, false, err
	}
	return record, false, nil
}

// failAttempt marks the ledger row failed after a broadcast error. The
// submission keeps its approved status so a retry can re-run the whole
// workflow with a fresh row.
func (s *distributionService) failAttempt(logger *zap.Logger, record *models.DistributionRecord, cause error) DistributeResult {
	logger.Error("token transfer failed",
		zap.Uint("distribution_id", record.ID),
		zap.Error(cause),
	)

	if err := s.ledger.Update(record.ID, map[string]interface{}{
		"status":        models.DistributionStatusFailed,
		"error_message": cause.Error(),
		"retry_count":   record.RetryCount + 1,
	}); err != nil {
		logger.Error("failed to record distribution failure", zap.Error(err))
	}

	return DistributeResult{
		Status: string(models.DistributionStatusFailed),
		Error:  cause.Error(),
	}
}

func (s *distributionService) markSubmissionDistributed(submissionID string) error {
	return s.db.Model(&models.Submission{}).
		Where("id = ?", submissionID).
		Update("status", models.SubmissionStatusDistributed).Error
}
