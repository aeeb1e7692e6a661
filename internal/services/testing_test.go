package services

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fruteroclub/pulpa-distributor/internal/models"
	"github.com/fruteroclub/pulpa-distributor/internal/pulpa"
)

const testChainID = 10

func setupTestDB(t *testing.T) *gorm.DB {
	// Use in-memory SQLite database for testing
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to connect to in-memory database")

	// A pooled second connection to :memory: would see a different
	// database, so keep everything on one connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Submission{},
		&models.DistributionRecord{},
	)
	require.NoError(t, err, "Failed to run migrations")

	if testing.Verbose() {
		db = db.Debug()
	}

	return db
}

// mockTokenService implements TokenService without touching the network.
type mockTokenService struct {
	balance       *big.Int
	address       string
	transferFn    func(ctx context.Context, recipient, amount string) (*TransferResult, error)
	confirmFn     func(ctx context.Context, txHash string) (*ConfirmationResult, error)
	transferCalls atomic.Int64
	lastRecipient atomic.Value
}

func newMockTokenService(balance string) *mockTokenService {
	raw, err := pulpa.ToBaseUnits(balance)
	if err != nil {
		panic(err)
	}
	return &mockTokenService{
		balance: raw,
		address: "0x1111111111111111111111111111111111111111",
	}
}

func (m *mockTokenService) GetBalance(ctx context.Context, address string) (*TokenBalance, error) {
	return &TokenBalance{
		Address:    address,
		Balance:    pulpa.FromBaseUnits(m.balance),
		RawBalance: m.balance,
	}, nil
}

func (m *mockTokenService) GetDistributorBalance(ctx context.Context) (*TokenBalance, error) {
	return m.GetBalance(ctx, m.address)
}

func (m *mockTokenService) Transfer(ctx context.Context, recipient, amount string) (*TransferResult, error) {
	m.transferCalls.Add(1)
	m.lastRecipient.Store(recipient)
	if m.transferFn != nil {
		return m.transferFn(ctx, recipient, amount)
	}

	raw, err := pulpa.ToBaseUnits(amount)
	if err != nil {
		return nil, &ValidationError{Field: "amount", Reason: err.Error()}
	}
	return &TransferResult{
		TransactionHash: "0xdead",
		Recipient:       recipient,
		Amount:          amount,
		RawAmount:       raw,
	}, nil
}

func (m *mockTokenService) WaitForConfirmation(ctx context.Context, txHash string) (*ConfirmationResult, error) {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, txHash)
	}
	return &ConfirmationResult{
		Status:      ConfirmationStatusSuccess,
		BlockNumber: 123456,
		GasUsed:     51234,
	}, nil
}

func (m *mockTokenService) DistributorAddress() string {
	return m.address
}

func (m *mockTokenService) Close() {}

func newTestWatcher(t *testing.T, token TokenService, ledger LedgerService) *WatcherService {
	watcher, err := NewWatcherService(token, ledger, 2, 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(watcher.Shutdown)
	return watcher
}
