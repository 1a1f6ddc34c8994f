package services

import (
	"context"
	"fmt"

	"github.com/upb/ak-van-sync/repositories"
)

// WithTransaction executes fn inside txMgr.InTransaction so repositories
// called with the supplied context join the transaction.
// Commits on success, rolls back on error or panic.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) error) error {
	if txMgr == nil {
		return NewDomainError(ErrorTypeInternal, "transaction manager is not configured", nil)
	}
	return txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		return fn(txCtx)
	})
}

// WithTransactionResult is WithTransaction for functions that produce a value.
// The value is returned even when the commit fails so callers can report
// what was attempted.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := WithTransaction(ctx, txMgr, func(txCtx context.Context) error {
		var fnErr error
		result, fnErr = fn(txCtx)
		return fnErr
	})
	if err != nil {
		return result, fmt.Errorf("transaction failed: %w", err)
	}
	return result, nil
}
