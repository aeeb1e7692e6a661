package services

import (
	"errors"
	"fmt"
)

// ErrNoWalletConfigured is returned when neither the embedded nor the
// external wallet is set on the recipient's profile.
var ErrNoWalletConfigured = errors.New("user has no wallet configured")

// ConfigError reports an invalid or missing distributor configuration
// value. It is raised at construction time, never mid-payout.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}

// ValidationError reports a bad recipient address or token amount. No state
// is mutated before validation passes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// InsufficientBalanceError reports that the distributor wallet holds less
// PULPA than the requested transfer. Amounts are in human units.
type InsufficientBalanceError struct {
	Available string
	Required  string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient distributor balance: available %s, required %s", e.Available, e.Required)
}

// TransferError wraps a signing or broadcast failure from the chain node.
type TransferError struct {
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("token transfer failed: %v", e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ChainQueryError wraps a read failure (balance or receipt lookup) against
// the chain RPC endpoint.
type ChainQueryError struct {
	Op  string
	Err error
}

func (e *ChainQueryError) Error() string {
	return fmt.Sprintf("chain query %s failed: %v", e.Op, e.Err)
}

func (e *ChainQueryError) Unwrap() error {
	return e.Err
}
