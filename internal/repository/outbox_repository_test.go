package repository

import (
	"testing"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/models"

	"github.com/google/uuid"
)

func TestOutboxRepositoryLifecycle(t *testing.T) {
	db := setupRepositoryTest(t)
	repo := NewOutboxRepository(db)
	aggregateID := uuid.New()

	first := &models.OutboxMessage{ID: uuid.New(), AggregateID: aggregateID, Topic: "payment-receipts", Key: "CAZ1", Payload: "{}", CreatedAt: time.Now().Add(-time.Minute)}
	second := &models.OutboxMessage{ID: uuid.New(), AggregateID: aggregateID, Topic: "payment-receipts", Key: "CAZ2", Payload: "{}", CreatedAt: time.Now()}
	for _, message := range []*models.OutboxMessage{first, second} {
		if err := repo.Create(message); err != nil {
			t.Fatalf("create outbox message failed: %v", err)
		}
	}
	if first.Status != constants.OutboxStatusPending {
		t.Fatalf("status should default to pending, got %s", first.Status)
	}

	pending, err := repo.ListPending(10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID {
		t.Fatalf("pending should be ordered by creation, got %d rows", len(pending))
	}

	if err := repo.MarkSent(first.ID, time.Now()); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkAttemptFailed(second.ID, "broker down", 2); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	pending, err = repo.ListPending(10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Attempts != 1 || pending[0].LastError != "broker down" {
		t.Fatalf("second message should stay pending after first failure: %+v", pending)
	}

	if err := repo.MarkAttemptFailed(second.ID, "broker down", 2); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	messages, err := repo.ListByAggregateID(aggregateID)
	if err != nil {
		t.Fatalf("list by aggregate failed: %v", err)
	}
	statuses := map[uuid.UUID]string{}
	for _, message := range messages {
		statuses[message.ID] = message.Status
	}
	if statuses[first.ID] != constants.OutboxStatusSent {
		t.Fatalf("first should be sent, got %s", statuses[first.ID])
	}
	if statuses[second.ID] != constants.OutboxStatusFailed {
		t.Fatalf("second should be failed after max attempts, got %s", statuses[second.ID])
	}
}
