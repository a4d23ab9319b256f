package repository

import (
	"testing"
	"time"

	"github.com/caz-payments/internal/constants"

	"github.com/google/uuid"
)

func TestEntrantPaymentRepositoryPropagateStatusSkipsOverriddenLines(t *testing.T) {
	db := setupRepositoryTest(t)
	payments := NewPaymentRepository(db)
	repo := NewEntrantPaymentRepository(db)
	payment := newTestPayment(uuid.New(), constants.ExternalStatusCreated, time.Now(), "AB12CDE", "AB12CDE", "AB12CDE")
	payment.EntrantPayments[0].InternalPaymentStatus = constants.InternalStatusPaid
	payment.EntrantPayments[1].UpdateActor = constants.UpdateActorLA
	if err := payments.Create(payment); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	affected, err := repo.PropagateStatus(payment.ID, constants.InternalStatusInitiated, constants.InternalStatusFailed)
	if err != nil {
		t.Fatalf("propagate failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 line updated, got %d", affected)
	}

	entrants, err := repo.ListByPaymentID(payment.ID)
	if err != nil {
		t.Fatalf("list entrants failed: %v", err)
	}
	byID := map[uuid.UUID]string{}
	for _, entrant := range entrants {
		byID[entrant.ID] = entrant.InternalPaymentStatus
	}
	if byID[payment.EntrantPayments[0].ID] != constants.InternalStatusPaid {
		t.Fatalf("line with diverged status should be untouched")
	}
	if byID[payment.EntrantPayments[1].ID] != constants.InternalStatusInitiated {
		t.Fatalf("LA overridden line should be untouched")
	}
	if byID[payment.EntrantPayments[2].ID] != constants.InternalStatusFailed {
		t.Fatalf("line still on previous status should follow the payment")
	}
}

func TestEntrantPaymentRepositoryUpdateStatusCAS(t *testing.T) {
	db := setupRepositoryTest(t)
	payments := NewPaymentRepository(db)
	repo := NewEntrantPaymentRepository(db)
	payment := newTestPayment(uuid.New(), constants.ExternalStatusSuccess, time.Now(), "AB12CDE")
	if err := payments.Create(payment); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	entrantID := payment.EntrantPayments[0].ID

	ok, err := repo.UpdateStatusCAS(entrantID, constants.InternalStatusInitiated, constants.InternalStatusPaid, constants.UpdateActorLA)
	if err != nil || !ok {
		t.Fatalf("cas update should succeed, ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateStatusCAS(entrantID, constants.InternalStatusInitiated, constants.InternalStatusFailed, constants.UpdateActorLA)
	if err != nil || ok {
		t.Fatalf("stale cas update should not apply, ok=%v err=%v", ok, err)
	}

	entrant, err := repo.GetByID(entrantID)
	if err != nil || entrant == nil {
		t.Fatalf("reload entrant failed: %v", err)
	}
	if entrant.InternalPaymentStatus != constants.InternalStatusPaid || entrant.UpdateActor != constants.UpdateActorLA {
		t.Fatalf("unexpected entrant state: %s/%s", entrant.InternalPaymentStatus, entrant.UpdateActor)
	}
}
