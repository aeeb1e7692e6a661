package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/fruteroclub/pulpa-distributor/internal/config"
)

const (
	// Well-known anvil/hardhat test key, never used on a real network.
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testKeyAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testTokenAddr  = "0x2222222222222222222222222222222222222222"
	testRecipient  = "0x3333333333333333333333333333333333333333"
)

func testChainConfig() config.ChainConfig {
	return config.ChainConfig{
		RPCURL:                "http://localhost:8545",
		ChainID:               10,
		TokenAddress:          testTokenAddr,
		DistributorPrivateKey: testPrivateKey,
	}
}

func TestNewTokenService(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		service, err := NewTokenService(testChainConfig(), zap.NewNop())
		require.NoError(t, err)
		defer service.Close()

		assert.Equal(t, testKeyAddress, service.DistributorAddress())
	})

	t.Run("MissingKey", func(t *testing.T) {
		cfg := testChainConfig()
		cfg.DistributorPrivateKey = ""

		_, err := NewTokenService(cfg, zap.NewNop())
		require.Error(t, err)
		var configErr *ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Equal(t, "chain.distributor_private_key", configErr.Field)
	})

	t.Run("MalformedKey", func(t *testing.T) {
		cfg := testChainConfig()
		cfg.DistributorPrivateKey = "0xnothex"

		_, err := NewTokenService(cfg, zap.NewNop())
		var configErr *ConfigError
		require.ErrorAs(t, err, &configErr)
	})

	t.Run("BadTokenAddress", func(t *testing.T) {
		cfg := testChainConfig()
		cfg.TokenAddress = "not-an-address"

		_, err := NewTokenService(cfg, zap.NewNop())
		var configErr *ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Equal(t, "chain.token_address", configErr.Field)
	})
}

// validationOnlyService builds a tokenService with no RPC client. Any test
// that passes against it proves validation happens before network I/O.
func validationOnlyService(t *testing.T) *tokenService {
	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	require.NoError(t, err)

	return &tokenService{
		erc20:  parsedABI,
		logger: zap.NewNop(),
	}
}

func TestTransferValidation(t *testing.T) {
	service := validationOnlyService(t)
	ctx := context.Background()

	t.Run("RejectsBadAddressBeforeBalanceQuery", func(t *testing.T) {
		for _, addr := range []string{"0x123", "", "not-an-address", "0xGG33333333333333333333333333333333333333"} {
			_, err := service.Transfer(ctx, addr, "1")
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr, "address %q", addr)
			assert.Equal(t, "recipient", validationErr.Field)
		}
	})

	t.Run("RejectsNonPositiveAmounts", func(t *testing.T) {
		for _, amount := range []string{"0", "0.0", "-1", "abc", "1.2.3"} {
			_, err := service.Transfer(ctx, testRecipient, amount)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr, "amount %q", amount)
			assert.Equal(t, "amount", validationErr.Field)
		}
	})
}

func TestWaitForConfirmationValidation(t *testing.T) {
	service := validationOnlyService(t)

	_, err := service.WaitForConfirmation(context.Background(), "0xdead")
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "transaction_hash", validationErr.Field)
}
