package services

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/fruteroclub/pulpa-distributor/internal/config"
	"github.com/fruteroclub/pulpa-distributor/internal/pulpa"
	"github.com/fruteroclub/pulpa-distributor/internal/utils"
)

// erc20ABI covers the subset of the token contract this service calls.
const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

// Fallback gas limit for an ERC-20 transfer when estimation fails.
const transferGasLimit = 100_000

const receiptPollInterval = 2 * time.Second

type ConfirmationStatus string

const (
	ConfirmationStatusSuccess  ConfirmationStatus = "success"
	ConfirmationStatusReverted ConfirmationStatus = "reverted"
)

// TokenBalance is a PULPA balance in both representations.
type TokenBalance struct {
	Address    string   `json:"address"`
	Balance    string   `json:"balance"` // human units
	RawBalance *big.Int `json:"raw_balance"`
}

// TransferResult describes a broadcast transfer. The transaction is not
// confirmed yet when this is returned.
type TransferResult struct {
	TransactionHash string   `json:"transaction_hash"`
	Recipient       string   `json:"recipient"`
	Amount          string   `json:"amount"`
	RawAmount       *big.Int `json:"raw_amount"`
}

// ConfirmationResult describes a mined transaction.
type ConfirmationResult struct {
	Status      ConfirmationStatus `json:"status"`
	BlockNumber uint64             `json:"block_number"`
	GasUsed     uint64             `json:"gas_used"`
}

// TokenService is the only component that talks to the chain. It signs
// outgoing transfers with the distributor key and reads token state.
type TokenService interface {
	GetBalance(ctx context.Context, address string) (*TokenBalance, error)
	GetDistributorBalance(ctx context.Context) (*TokenBalance, error)
	Transfer(ctx context.Context, recipient, amount string) (*TransferResult, error)
	WaitForConfirmation(ctx context.Context, txHash string) (*ConfirmationResult, error)
	DistributorAddress() string
	Close()
}

type tokenService struct {
	client      *ethclient.Client
	erc20       abi.ABI
	token       common.Address
	chainID     *big.Int
	privateKey  *ecdsa.PrivateKey
	distributor common.Address
	logger      *zap.Logger

	// Serializes nonce assignment and broadcast so concurrent payouts
	// cannot race for the same nonce.
	broadcastMu sync.Mutex
}

// NewTokenService validates the chain configuration, loads the distributor
// signing key and connects to the RPC endpoint. A missing or malformed key
// fails fast here rather than on the first payout.
func NewTokenService(cfg config.ChainConfig, logger *zap.Logger) (TokenService, error) {
	if cfg.DistributorPrivateKey == "" {
		return nil, &ConfigError{Field: "chain.distributor_private_key", Reason: "not set"}
	}
	keyHex := strings.TrimPrefix(cfg.DistributorPrivateKey, "0x")
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, &ConfigError{Field: "chain.distributor_private_key", Reason: err.Error()}
	}

	if !utils.IsValidEthereumAddress(cfg.TokenAddress) {
		return nil, &ConfigError{Field: "chain.token_address", Reason: "not a valid contract address"}
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, &ConfigError{Field: "chain.rpc_url", Reason: err.Error()}
	}

	return &tokenService{
		client:      client,
		erc20:       parsedABI,
		token:       common.HexToAddress(cfg.TokenAddress),
		chainID:     big.NewInt(cfg.ChainID),
		privateKey:  privateKey,
		distributor: crypto.PubkeyToAddress(privateKey.PublicKey),
		logger:      logger,
	}, nil
}

// GetBalance queries the token contract's balanceOf for any address.
func (s *tokenService) GetBalance(ctx context.Context, address string) (*TokenBalance, error) {
	if !utils.IsValidEthereumAddress(address) {
		return nil, &ValidationError{Field: "address", Reason: "not a valid wallet address"}
	}

	raw, err := s.balanceOf(ctx, common.HexToAddress(address))
	if err != nil {
		return nil, err
	}

	return &TokenBalance{
		Address:    address,
		Balance:    pulpa.FromBaseUnits(raw),
		RawBalance: raw,
	}, nil
}

// GetDistributorBalance returns the balance of the server-held wallet.
func (s *tokenService) GetDistributorBalance(ctx context.Context) (*TokenBalance, error) {
	return s.GetBalance(ctx, s.distributor.Hex())
}

// Transfer broadcasts a PULPA transfer and returns the transaction hash
// without waiting for confirmation. The distributor balance is re-checked
// immediately before broadcast; an on-chain revert can still happen later.
func (s *tokenService) Transfer(ctx context.Context, recipient, amount string) (*TransferResult, error) {
	if !utils.IsValidEthereumAddress(recipient) {
		return nil, &ValidationError{Field: "recipient", Reason: fmt.Sprintf("invalid wallet address %q", recipient)}
	}

	rawAmount, err := pulpa.ToBaseUnits(amount)
	if err != nil {
		return nil, &ValidationError{Field: "amount", Reason: err.Error()}
	}
	if rawAmount.Sign() <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	available, err := s.balanceOf(ctx, s.distributor)
	if err != nil {
		return nil, err
	}
	if available.Cmp(rawAmount) < 0 {
		return nil, &InsufficientBalanceError{
			Available: pulpa.FromBaseUnits(available),
			Required:  pulpa.FromBaseUnits(rawAmount),
		}
	}

	data, err := s.erc20.Pack("transfer", common.HexToAddress(recipient), rawAmount)
	if err != nil {
		return nil, &TransferError{Err: fmt.Errorf("failed to encode transfer call: %w", err)}
	}

	txHash, err := s.broadcast(ctx, data)
	if err != nil {
		return nil, &TransferError{Err: err}
	}

	s.logger.Info("PULPA transfer broadcast",
		zap.String("tx_hash", txHash),
		zap.String("recipient", recipient),
		zap.String("amount", amount),
	)

	return &TransferResult{
		TransactionHash: txHash,
		Recipient:       recipient,
		Amount:          amount,
		RawAmount:       rawAmount,
	}, nil
}

// broadcast signs and sends a token contract call. Nonce assignment and
// send happen under one lock so concurrent transfers get distinct nonces.
func (s *tokenService) broadcast(ctx context.Context, data []byte) (string, error) {
	s.broadcastMu.Lock()
	defer s.broadcastMu.Unlock()

	nonce, err := s.client.PendingNonceAt(ctx, s.distributor)
	if err != nil {
		return "", fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch gas price: %w", err)
	}

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From: s.distributor,
		To:   &s.token,
		Data: data,
	})
	if err != nil {
		gasLimit = transferGasLimit
	}

	tx := types.NewTransaction(nonce, s.token, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}

// WaitForConfirmation polls for the transaction receipt until the network
// reports it mined or the context expires. Only the background watcher
// calls this; the payout path never blocks on it.
func (s *tokenService) WaitForConfirmation(ctx context.Context, txHash string) (*ConfirmationResult, error) {
	if !utils.IsValidTransactionHash(txHash) {
		return nil, &ValidationError{Field: "transaction_hash", Reason: fmt.Sprintf("invalid transaction hash %q", txHash)}
	}

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			status := ConfirmationStatusSuccess
			if receipt.Status != types.ReceiptStatusSuccessful {
				status = ConfirmationStatusReverted
			}
			return &ConfirmationResult{
				Status:      status,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, &ChainQueryError{Op: "transaction_receipt", Err: err}
		}

		select {
		case <-ctx.Done():
			return nil, &ChainQueryError{Op: "transaction_receipt", Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

func (s *tokenService) DistributorAddress() string {
	return s.distributor.Hex()
}

func (s *tokenService) Close() {
	s.client.Close()
}

func (s *tokenService) balanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := s.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, &ChainQueryError{Op: "balance_of", Err: err}
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.token, Data: data}, nil)
	if err != nil {
		return nil, &ChainQueryError{Op: "balance_of", Err: err}
	}

	balance := new(big.Int)
	if err := s.erc20.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return nil, &ChainQueryError{Op: "balance_of", Err: err}
	}
	return balance, nil
}
