package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	err := fmt.Errorf("approve: %w", InsufficientStock("product %d short by %d", 7, 3))

	require.ErrorIs(t, err, ErrInsufficientStock)
	require.False(t, errors.Is(err, ErrValidation))
	require.Equal(t, KindInsufficientStock, KindOf(err))
	require.Equal(t, "approve: product 7 short by 3", err.Error())
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	require.Equal(t, KindInternal, KindOf(errors.New("connection reset")))
	require.Equal(t, KindInternal, KindOf(nil))
}

func TestIdempotencyConflictIsConflict(t *testing.T) {
	require.ErrorIs(t, ErrIdempotencyConflict, ErrConflict)
	require.ErrorIs(t, fmt.Errorf("wrap: %w", ErrIdempotencyConflict), ErrIdempotencyConflict)
	require.False(t, errors.Is(Conflict("other"), ErrIdempotencyConflict))
}

func TestAuditLogValidate(t *testing.T) {
	require.Error(t, AuditLog{Action: AuditDocumentApprove, Entity: "documents"}.Validate())
	require.NoError(t, AuditLog{Action: AuditDocumentApprove, Entity: "documents", EntityID: "12"}.Validate())

	var logger *AuditLogger
	require.Error(t, logger.Record(context.Background(), AuditLog{}))
}
