package service

import (
	"context"
	"testing"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports/mocks"
	"merchant-wallet-ledger/pkg/correlation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditService_Log_PersistsWithCorrelationID(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestClock(), newTestLogger())

	done := make(chan *domain.AuditEntry, 1)
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.AuditEntry) error {
			done <- e
			return nil
		},
	)

	ctx := correlation.WithID(context.Background(), "req-7f3a")
	withdrawalID := uuid.New()
	svc.Log(ctx, &domain.AuditEntry{
		Actor:    "ops-ada",
		Action:   domain.AuditActionLockAcquired,
		Entity:   string(domain.LockKindWithdrawal),
		EntityID: withdrawalID.String(),
	})

	select {
	case e := <-done:
		assert.Equal(t, "req-7f3a", e.CorrelationID)
		assert.Equal(t, testNow, e.CreatedAt)
		assert.NotEqual(t, uuid.Nil, e.ID)
		assert.Equal(t, withdrawalID.String(), e.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry not persisted in time")
	}
}

func TestAuditService_Log_KeepsExplicitCorrelationID(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestClock(), newTestLogger())

	done := make(chan string, 1)
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.AuditEntry) error {
			done <- e.CorrelationID
			return nil
		},
	)

	ctx := correlation.WithID(context.Background(), "from-ctx")
	svc.Log(ctx, &domain.AuditEntry{Actor: "system", Action: domain.AuditActionStuckOperation, Entity: "withdrawal", CorrelationID: "job-run-1"})

	select {
	case id := <-done:
		assert.Equal(t, "job-run-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry not persisted in time")
	}
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestClock(), newTestLogger())

	// Should not panic
	svc.Log(context.Background(), &domain.AuditEntry{Actor: "system", Action: domain.AuditActionLogin, Entity: "account"})

	time.Sleep(50 * time.Millisecond) // let goroutine run
}
