package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fruteroclub/pulpa-distributor/internal/models"
)

const (
	testAppWallet = "0xaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa1"
	testExtWallet = "0xbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBb2"
)

type distributionFixture struct {
	db      *gorm.DB
	ledger  LedgerService
	token   *mockTokenService
	watcher *WatcherService
	service DistributionService
}

func newDistributionFixture(t *testing.T, balance string) *distributionFixture {
	db := setupTestDB(t)
	ledger := NewLedgerService(db)
	token := newMockTokenService(balance)
	watcher := newTestWatcher(t, token, ledger)

	return &distributionFixture{
		db:      db,
		ledger:  ledger,
		token:   token,
		watcher: watcher,
		service: NewDistributionService(db, ledger, token, watcher, testChainID, zap.NewNop()),
	}
}

func (f *distributionFixture) seedUser(t *testing.T, appWallet, extWallet string) {
	require.NoError(t, f.db.Create(&models.User{
		ID:        "user-1",
		Username:  "mango",
		AppWallet: appWallet,
		ExtWallet: extWallet,
	}).Error)
}

func (f *distributionFixture) seedSubmission(t *testing.T) {
	require.NoError(t, f.db.Create(&models.Submission{
		ID:         "sub-1",
		ActivityID: "activity-1",
		UserID:     "user-1",
		Status:     models.SubmissionStatusApproved,
	}).Error)
}

func defaultRequest() DistributeRequest {
	return DistributeRequest{
		SubmissionID:        "sub-1",
		ActivityID:          "activity-1",
		UserID:              "user-1",
		PulpaAmount:         "2.5",
		DistributedByUserID: "reviewer-1",
	}
}

func TestDistributeHappyPath(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)

	result := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())

	require.True(t, result.Success, "unexpected error: %s", result.Error)
	assert.Equal(t, "0xdead", result.TransactionHash)
	require.NotZero(t, result.DistributionID)

	record, err := f.ledger.GetByID(result.DistributionID)
	require.NoError(t, err)
	assert.Equal(t, models.DistributionStatusCompleted, record.Status)
	assert.Equal(t, "0xdead", record.TransactionHash)
	assert.Equal(t, "2.5", record.PulpaAmount)
	assert.Equal(t, testAppWallet, record.RecipientWallet)
	assert.Equal(t, int64(testChainID), record.ChainID)
	require.NotNil(t, record.DistributedAt)

	var submission models.Submission
	require.NoError(t, f.db.First(&submission, "id = ?", "sub-1").Error)
	assert.Equal(t, models.SubmissionStatusDistributed, submission.Status)
}

func TestDistributeConfirmationAnnotation(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)

	result := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())
	require.True(t, result.Success)

	f.watcher.WaitIdle()

	record, err := f.ledger.GetByID(result.DistributionID)
	require.NoError(t, err)
	require.NotNil(t, record.ConfirmedAt)
	require.NotNil(t, record.Metadata)
	assert.EqualValues(t, 123456, record.Metadata["block_number"])
	assert.EqualValues(t, 51234, record.Metadata["gas_used"])
	assert.Equal(t, string(ConfirmationStatusSuccess), record.Metadata["confirmation_status"])
}

func TestDistributeConfirmationFailureIsSwallowed(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)
	f.token.confirmFn = func(ctx context.Context, txHash string) (*ConfirmationResult, error) {
		return nil, &ChainQueryError{Op: "transaction_receipt", Err: errors.New("rpc timeout")}
	}

	result := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())
	require.True(t, result.Success)

	f.watcher.WaitIdle()

	// The completed status and hash are untouched by the failed watch.
	record, err := f.ledger.GetByID(result.DistributionID)
	require.NoError(t, err)
	assert.Equal(t, models.DistributionStatusCompleted, record.Status)
	assert.Equal(t, "0xdead", record.TransactionHash)
	assert.Nil(t, record.ConfirmedAt)
}

func TestDistributeBroadcastFailure(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)
	f.token.transferFn = func(ctx context.Context, recipient, amount string) (*TransferResult, error) {
		return nil, &TransferError{Err: errors.New("nonce too low")}
	}

	result := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "nonce too low")

	records, err := f.ledger.GetBySubmission("sub-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.DistributionStatusFailed, records[0].Status)
	assert.Contains(t, records[0].ErrorMessage, "nonce too low")
	assert.Equal(t, 1, records[0].RetryCount)
	assert.Empty(t, records[0].TransactionHash)

	// Submission stays approved so the whole workflow can be re-run.
	var submission models.Submission
	require.NoError(t, f.db.First(&submission, "id = ?", "sub-1").Error)
	assert.Equal(t, models.SubmissionStatusApproved, submission.Status)
}

func TestDistributeRetryAfterFailureCreatesNewRow(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)

	f.token.transferFn = func(ctx context.Context, recipient, amount string) (*TransferResult, error) {
		return nil, &TransferError{Err: errors.New("node unavailable")}
	}
	first := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())
	require.False(t, first.Success)

	f.token.transferFn = nil
	second := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())
	require.True(t, second.Success, "unexpected error: %s", second.Error)

	records, err := f.ledger.GetBySubmission("sub-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	statuses := map[models.DistributionStatus]int{}
	for _, r := range records {
		statuses[r.Status]++
	}
	assert.Equal(t, 1, statuses[models.DistributionStatusFailed])
	assert.Equal(t, 1, statuses[models.DistributionStatusCompleted])
}

func TestDistributeIdempotency(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)

	first := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())
	require.True(t, first.Success)

	second := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())
	assert.True(t, second.Success)
	assert.Equal(t, first.DistributionID, second.DistributionID)
	assert.Equal(t, first.TransactionHash, second.TransactionHash)

	assert.EqualValues(t, 1, f.token.transferCalls.Load(), "second call must not reach the chain")

	var count int64
	require.NoError(t, f.db.Model(&models.DistributionRecord{}).
		Where("submission_id = ? AND status = ?", "sub-1", models.DistributionStatusCompleted).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDistributeReportsInFlightDuplicate(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)

	inflight := newTestRecord("sub-1", models.DistributionStatusProcessing)
	require.NoError(t, f.ledger.Create(inflight))

	result := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())

	assert.False(t, result.Success)
	assert.Equal(t, ErrDistributionInProgress.Error(), result.Error)
	assert.Equal(t, string(models.DistributionStatusProcessing), result.Status)
	assert.Equal(t, inflight.ID, result.DistributionID)
	assert.EqualValues(t, 0, f.token.transferCalls.Load(), "in-flight duplicate must not reach the chain")
}

func TestDistributeIdempotencyUnderConcurrency(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.service.DistributeSubmissionReward(context.Background(), defaultRequest())
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, f.db.Model(&models.DistributionRecord{}).
		Where("submission_id = ? AND status IN ?", "sub-1", []models.DistributionStatus{
			models.DistributionStatusProcessing,
			models.DistributionStatusCompleted,
		}).
		Count(&count).Error)
	assert.EqualValues(t, 1, count, "duplicate guard must allow exactly one active row")
}

func TestDistributeWalletFallback(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, "", testExtWallet)
	f.seedSubmission(t)

	result := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())
	require.True(t, result.Success, "unexpected error: %s", result.Error)

	assert.Equal(t, testExtWallet, f.token.lastRecipient.Load())

	record, err := f.ledger.GetByID(result.DistributionID)
	require.NoError(t, err)
	assert.Equal(t, testExtWallet, record.RecipientWallet)
}

func TestDistributeNoWalletConfigured(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, "", "")
	f.seedSubmission(t)

	result := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "wallet")

	records, err := f.ledger.GetBySubmission("sub-1")
	require.NoError(t, err)
	assert.Empty(t, records, "no ledger row without a recipient wallet")
}

func TestDistributeUnknownUser(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedSubmission(t)

	result := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "wallet")
}

func TestDistributeInsufficientBalance(t *testing.T) {
	f := newDistributionFixture(t, "10")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)

	req := defaultRequest()
	req.PulpaAmount = "15"
	result := f.service.DistributeSubmissionReward(context.Background(), req)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "available 10")
	assert.Contains(t, result.Error, "required 15")

	records, err := f.ledger.GetBySubmission("sub-1")
	require.NoError(t, err)
	assert.Empty(t, records, "pre-flight failures must not create ledger rows")
	assert.Zero(t, f.token.transferCalls.Load())
}

func TestDistributeInvalidAmount(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)

	for _, amount := range []string{"0", "abc", "1.2.3", "-5", ""} {
		req := defaultRequest()
		req.PulpaAmount = amount
		result := f.service.DistributeSubmissionReward(context.Background(), req)
		assert.False(t, result.Success, "amount %q must be rejected", amount)
	}

	records, err := f.ledger.GetBySubmission("sub-1")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, f.token.transferCalls.Load())
}

func TestHasExistingDistribution(t *testing.T) {
	f := newDistributionFixture(t, "100")
	f.seedUser(t, testAppWallet, "")
	f.seedSubmission(t)

	exists, err := f.service.HasExistingDistribution("sub-1")
	require.NoError(t, err)
	assert.False(t, exists)

	result := f.service.DistributeSubmissionReward(context.Background(), defaultRequest())
	require.True(t, result.Success)

	exists, err = f.service.HasExistingDistribution("sub-1")
	require.NoError(t, err)
	assert.True(t, exists)
}
