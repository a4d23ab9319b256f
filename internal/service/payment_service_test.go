package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/credentials"
	"github.com/caz-payments/internal/models"
	"github.com/caz-payments/internal/payment/directdebit"
	"github.com/caz-payments/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type stubGateway struct {
	createResult *ExternalPaymentResult
	createErr    error
	status       string
	statusErr    error
	createCalls  int
	fetchCalls   int
	onCreate     func()
}

func (g *stubGateway) CreateExternalPayment(_ context.Context, _ *models.Payment) (*ExternalPaymentResult, error) {
	g.createCalls++
	if g.onCreate != nil {
		g.onCreate()
	}
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.createResult, nil
}

func (g *stubGateway) FetchExternalStatus(_ context.Context, _ *models.Payment) (string, error) {
	g.fetchCalls++
	return g.status, g.statusErr
}

type stubMandateGateway struct {
	created   *directdebit.Mandate
	createErr error
	statuses  map[string]directdebit.MandateStatus
	getErr    error
	getCalls  int
}

func (g *stubMandateGateway) CreateMandate(_ context.Context, _ uuid.UUID, reference, _ string) (*directdebit.Mandate, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	created := *g.created
	created.Reference = reference
	return &created, nil
}

func (g *stubMandateGateway) GetMandate(_ context.Context, _ uuid.UUID, mandateID string) (*directdebit.Mandate, error) {
	g.getCalls++
	if g.getErr != nil {
		return nil, g.getErr
	}
	return &directdebit.Mandate{MandateID: mandateID, Status: g.statuses[mandateID]}, nil
}

type paymentServiceFixture struct {
	svc         *PaymentService
	db          *gorm.DB
	card        *stubGateway
	directDebit *stubGateway
	mandates    *stubMandateGateway
	mandateRepo repository.MandateRepository
}

func setupPaymentServiceTest(t *testing.T) *paymentServiceFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	card := &stubGateway{}
	directDebit := &stubGateway{}
	mandates := &stubMandateGateway{statuses: map[string]directdebit.MandateStatus{}}
	mandateRepo := repository.NewMandateRepository(db)
	svc := NewPaymentService(PaymentServiceOptions{
		PaymentRepo:        repository.NewPaymentRepository(db),
		EntrantRepo:        repository.NewEntrantPaymentRepository(db),
		OutboxRepo:         repository.NewOutboxRepository(db),
		Builder:            NewPaymentBuilder(constants.RemainderPolicyTruncate),
		CardGateway:        card,
		DirectDebitGateway: directDebit,
		MandateService:     NewMandateService(mandateRepo, mandates, "https://example.com/mandate"),
		Receipts:           NewReceiptBuilder("template-1", "payment-receipts", nil),
		DanglingMinAge:     90 * time.Minute,
		DanglingBatchSize:  10,
	})
	return &paymentServiceFixture{
		svc:         svc,
		db:          db,
		card:        card,
		directDebit: directDebit,
		mandates:    mandates,
		mandateRepo: mandateRepo,
	}
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count rows failed: %v", err)
	}
	return count
}

func initiateCardPayment(t *testing.T, f *paymentServiceFixture, req ChargeRequest) *models.Payment {
	t.Helper()
	f.card.createResult = &ExternalPaymentResult{
		ExternalID: "ext-" + uuid.NewString()[:8],
		Status:     constants.ExternalStatusCreated,
		NextURL:    "https://pay.example/next",
	}
	payment, err := f.svc.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("initiate payment failed: %v", err)
	}
	return payment
}

func TestInitiatePaymentPersistsInitiatedAggregate(t *testing.T) {
	f := setupPaymentServiceTest(t)
	req := validChargeRequest()
	payment := initiateCardPayment(t, f, req)

	if payment.InternalStatus != constants.InternalStatusInitiated || payment.ExternalPaymentStatus != constants.ExternalStatusCreated {
		t.Fatalf("unexpected status %s/%s", payment.InternalStatus, payment.ExternalPaymentStatus)
	}
	if payment.NextURL != "https://pay.example/next" || payment.SubmittedAt == nil {
		t.Fatalf("next url and submitted_at should be set")
	}

	stored, err := f.svc.GetPayment(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if stored.ExternalID != payment.ExternalID || len(stored.EntrantPayments) != 3 {
		t.Fatalf("unexpected stored payment %+v", stored)
	}
	for _, line := range stored.EntrantPayments {
		if line.InternalPaymentStatus != constants.InternalStatusInitiated {
			t.Fatalf("line should be INITIATED, got %s", line.InternalPaymentStatus)
		}
	}
	if countRows(t, f.db, &models.OutboxMessage{}) != 0 {
		t.Fatalf("no receipt expected for an initiated payment")
	}
}

func TestInitiatePaymentPersistsAfterCallerCancelsPostGateway(t *testing.T) {
	f := setupPaymentServiceTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.card.createResult = &ExternalPaymentResult{
		ExternalID: "ext-cancelled-caller",
		Status:     constants.ExternalStatusCreated,
		NextURL:    "https://pay.example/next",
	}
	// 调用方在网关返回前断开
	f.card.onCreate = cancel

	payment, err := f.svc.InitiatePayment(ctx, validChargeRequest())
	if err != nil {
		t.Fatalf("persistence should survive caller cancellation, got %v", err)
	}
	if ctx.Err() == nil {
		t.Fatalf("caller context should be cancelled by the gateway stub")
	}
	if countRows(t, f.db, &models.Payment{}) != 1 {
		t.Fatalf("payment row should be persisted")
	}
	if countRows(t, f.db, &models.VehicleEntrantPayment{}) != 3 {
		t.Fatalf("all three entrant lines should be persisted")
	}
	stored, err := f.svc.GetPayment(context.Background(), payment.ID)
	if err != nil || stored.ExternalID != "ext-cancelled-caller" || stored.InternalStatus != constants.InternalStatusInitiated {
		t.Fatalf("stored payment mismatch: %+v err=%v", stored, err)
	}
}

func TestInitiatePaymentGatewayFailurePersistsNothing(t *testing.T) {
	f := setupPaymentServiceTest(t)
	f.card.createErr = fmt.Errorf("%w: boom", ErrGatewayRequestFailed)

	_, err := f.svc.InitiatePayment(context.Background(), validChargeRequest())
	if !errors.Is(err, ErrPaymentInitiationFailed) || !errors.Is(err, ErrExternalPaymentCreation) {
		t.Fatalf("want initiation failure wrapping external creation, got %v", err)
	}
	if countRows(t, f.db, &models.Payment{}) != 0 || countRows(t, f.db, &models.VehicleEntrantPayment{}) != 0 {
		t.Fatalf("nothing should be persisted after a gateway failure")
	}
}

func TestInitiatePaymentValidationSkipsGateway(t *testing.T) {
	f := setupPaymentServiceTest(t)
	req := validChargeRequest()
	req.VRNs = nil
	if _, err := f.svc.InitiatePayment(context.Background(), req); !errors.Is(err, ErrValidation) {
		t.Fatalf("want validation error got %v", err)
	}
	if f.card.createCalls != 0 {
		t.Fatalf("gateway must not be called for invalid requests")
	}
}

func TestInitiatePaymentMissingCredentialIsConfigurationError(t *testing.T) {
	f := setupPaymentServiceTest(t)
	f.card.createErr = fmt.Errorf("%w: card/zone", credentials.ErrCredentialNotConfigured)

	_, err := f.svc.InitiatePayment(context.Background(), validChargeRequest())
	if !errors.Is(err, ErrCredentialNotConfigured) {
		t.Fatalf("want credential error got %v", err)
	}
	if errors.Is(err, ErrPaymentInitiationFailed) {
		t.Fatalf("credential error must stay distinct from payment failures")
	}
}

func TestInitiateDirectDebitPaymentPaidImmediately(t *testing.T) {
	f := setupPaymentServiceTest(t)
	req := validChargeRequest()
	req.PaymentMethod = constants.PaymentMethodDirectDebit
	req.MandateID = "mandate-active"
	if err := f.mandateRepo.Create(&models.Mandate{
		ID:                       uuid.New(),
		PaymentProviderMandateID: req.MandateID,
		CleanAirZoneID:           req.CleanAirZoneID,
		Reference:                "CAZDD1",
		Status:                   constants.MandateStatusActive,
	}); err != nil {
		t.Fatalf("create mandate failed: %v", err)
	}
	f.mandates.statuses[req.MandateID] = directdebit.MandateStatusActive
	f.directDebit.createResult = &ExternalPaymentResult{ExternalID: "dd-pay-1", Status: constants.ExternalStatusSuccess}

	payment, err := f.svc.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("initiate direct debit failed: %v", err)
	}
	if payment.InternalStatus != constants.InternalStatusPaid || payment.AuthorisedAt == nil {
		t.Fatalf("direct debit success should be PAID with authorised_at, got %s", payment.InternalStatus)
	}
	var messages []models.OutboxMessage
	if err := f.db.Find(&messages).Error; err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Key != payment.Reference || messages[0].AggregateID != payment.ID {
		t.Fatalf("expected one receipt keyed by reference, got %+v", messages)
	}
}

func TestInitiateDirectDebitRequiresActiveMandate(t *testing.T) {
	f := setupPaymentServiceTest(t)
	req := validChargeRequest()
	req.PaymentMethod = constants.PaymentMethodDirectDebit
	req.MandateID = "mandate-pending"
	if err := f.mandateRepo.Create(&models.Mandate{
		ID:                       uuid.New(),
		PaymentProviderMandateID: req.MandateID,
		CleanAirZoneID:           req.CleanAirZoneID,
		Reference:                "CAZDD2",
		Status:                   constants.MandateStatusPendingSubmission,
	}); err != nil {
		t.Fatalf("create mandate failed: %v", err)
	}
	f.mandates.statuses[req.MandateID] = directdebit.MandateStatusSubmitted

	if _, err := f.svc.InitiatePayment(context.Background(), req); !errors.Is(err, ErrMandateNotActive) {
		t.Fatalf("want mandate not active got %v", err)
	}
	if f.directDebit.createCalls != 0 {
		t.Fatalf("gateway must not be called without an active mandate")
	}

	req.MandateID = "mandate-unknown"
	if _, err := f.svc.InitiatePayment(context.Background(), req); !errors.Is(err, ErrMandateNotFound) {
		t.Fatalf("want mandate not found got %v", err)
	}
}

func TestReconcileUnchangedStatusIsNoop(t *testing.T) {
	f := setupPaymentServiceTest(t)
	payment := initiateCardPayment(t, f, validChargeRequest())
	f.card.status = constants.ExternalStatusCreated

	got, err := f.svc.Reconcile(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if got.Version != payment.Version {
		t.Fatalf("unchanged status must not write, version %d -> %d", payment.Version, got.Version)
	}
}

func TestReconcileExternalOnlyUpdate(t *testing.T) {
	f := setupPaymentServiceTest(t)
	payment := initiateCardPayment(t, f, validChargeRequest())
	f.card.status = constants.ExternalStatusSubmitted

	if _, err := f.svc.Reconcile(context.Background(), payment.ID); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	stored, _ := f.svc.GetPayment(context.Background(), payment.ID)
	if stored.ExternalPaymentStatus != constants.ExternalStatusSubmitted || stored.InternalStatus != constants.InternalStatusInitiated {
		t.Fatalf("unexpected status %s/%s", stored.ExternalPaymentStatus, stored.InternalStatus)
	}
	if stored.Version != payment.Version+1 {
		t.Fatalf("version should be bumped once")
	}
}

func TestReconcilePaidPropagatesAndQueuesReceipt(t *testing.T) {
	f := setupPaymentServiceTest(t)
	payment := initiateCardPayment(t, f, validChargeRequest())

	overridden := payment.EntrantPayments[1]
	if err := f.db.Model(&models.VehicleEntrantPayment{}).Where("id = ?", overridden.ID).
		Update("update_actor", constants.UpdateActorLA).Error; err != nil {
		t.Fatalf("mark override failed: %v", err)
	}

	f.card.status = constants.ExternalStatusSuccess
	got, err := f.svc.Reconcile(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if got.InternalStatus != constants.InternalStatusPaid || got.AuthorisedAt == nil {
		t.Fatalf("payment should be PAID with authorised_at")
	}

	stored, _ := f.svc.GetPayment(context.Background(), payment.ID)
	if stored.InternalStatus != constants.InternalStatusPaid {
		t.Fatalf("stored header want PAID got %s", stored.InternalStatus)
	}
	for _, line := range stored.EntrantPayments {
		want := constants.InternalStatusPaid
		if line.ID == overridden.ID {
			want = constants.InternalStatusInitiated
		}
		if line.InternalPaymentStatus != want {
			t.Fatalf("line %s want %s got %s", line.ID, want, line.InternalPaymentStatus)
		}
	}
	if countRows(t, f.db, &models.OutboxMessage{}) != 1 {
		t.Fatalf("one receipt should be queued")
	}

	// 再次对账不重复写入
	if _, err := f.svc.Reconcile(context.Background(), payment.ID); err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if countRows(t, f.db, &models.OutboxMessage{}) != 1 {
		t.Fatalf("repeated reconcile must not queue another receipt")
	}
}

func TestReconcileWithoutEmailSkipsReceipt(t *testing.T) {
	f := setupPaymentServiceTest(t)
	req := validChargeRequest()
	req.EmailAddress = ""
	payment := initiateCardPayment(t, f, req)
	f.card.status = constants.ExternalStatusCaptured

	if _, err := f.svc.Reconcile(context.Background(), payment.ID); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if countRows(t, f.db, &models.OutboxMessage{}) != 0 {
		t.Fatalf("no receipt without an email address")
	}
}

func TestReconcileRejectsIllegalTransition(t *testing.T) {
	f := setupPaymentServiceTest(t)
	payment := initiateCardPayment(t, f, validChargeRequest())
	f.card.status = constants.ExternalStatusFailed
	if _, err := f.svc.Reconcile(context.Background(), payment.ID); err != nil {
		t.Fatalf("reconcile to FAILED failed: %v", err)
	}

	f.card.status = constants.ExternalStatusSuccess
	_, err := f.svc.Reconcile(context.Background(), payment.ID)
	if !errors.Is(err, ErrIllegalStatusTransition) {
		t.Fatalf("FAILED -> PAID must be rejected, got %v", err)
	}
	stored, _ := f.svc.GetPayment(context.Background(), payment.ID)
	if stored.InternalStatus != constants.InternalStatusFailed {
		t.Fatalf("rejected transition must not persist, got %s", stored.InternalStatus)
	}
}

func TestReconcileLostRaceReturnsConflict(t *testing.T) {
	f := setupPaymentServiceTest(t)
	payment := initiateCardPayment(t, f, validChargeRequest())
	stale, _ := f.svc.GetPayment(context.Background(), payment.ID)

	if err := f.db.Model(&models.Payment{}).Where("id = ?", payment.ID).
		Update("version", gorm.Expr("version + 1")).Error; err != nil {
		t.Fatalf("bump version failed: %v", err)
	}
	f.card.status = constants.ExternalStatusSuccess
	if _, err := f.svc.ReconcilePayment(context.Background(), stale); !errors.Is(err, ErrPaymentStateConflict) {
		t.Fatalf("want state conflict got %v", err)
	}
	stored, _ := f.svc.GetPayment(context.Background(), payment.ID)
	if stored.InternalStatus != constants.InternalStatusInitiated {
		t.Fatalf("lost race must not change state")
	}
	for _, line := range stored.EntrantPayments {
		if line.InternalPaymentStatus != constants.InternalStatusInitiated {
			t.Fatalf("lines must be rolled back with the header")
		}
	}
}

func TestReconcileErrors(t *testing.T) {
	f := setupPaymentServiceTest(t)
	if _, err := f.svc.Reconcile(context.Background(), uuid.New()); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("want not found got %v", err)
	}

	unsent := &models.Payment{ID: uuid.New(), PaymentMethod: constants.PaymentMethodCard}
	if _, err := f.svc.ReconcilePayment(context.Background(), unsent); !errors.Is(err, ErrPaymentNotSubmitted) {
		t.Fatalf("want not submitted got %v", err)
	}

	payment := initiateCardPayment(t, f, validChargeRequest())
	f.card.statusErr = fmt.Errorf("%w: unknown", ErrUnmappedExternalStatus)
	if _, err := f.svc.Reconcile(context.Background(), payment.ID); !errors.Is(err, ErrUnmappedExternalStatus) {
		t.Fatalf("want unmapped status got %v", err)
	}
}

func TestUpdateEntrantStatusMarksOverride(t *testing.T) {
	f := setupPaymentServiceTest(t)
	payment := initiateCardPayment(t, f, validChargeRequest())
	f.card.status = constants.ExternalStatusSuccess
	if _, err := f.svc.Reconcile(context.Background(), payment.ID); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	target := payment.EntrantPayments[0]
	entrant, err := f.svc.UpdateEntrantStatus(context.Background(), target.ID, constants.InternalStatusChargeback)
	if err != nil {
		t.Fatalf("update entrant failed: %v", err)
	}
	if entrant.InternalPaymentStatus != constants.InternalStatusChargeback || entrant.UpdateActor != constants.UpdateActorLA {
		t.Fatalf("unexpected entrant %+v", entrant)
	}

	if _, err := f.svc.UpdateEntrantStatus(context.Background(), target.ID, constants.InternalStatusPaid); !errors.Is(err, ErrIllegalStatusTransition) {
		t.Fatalf("CHARGEBACK -> PAID must be rejected, got %v", err)
	}
	if _, err := f.svc.UpdateEntrantStatus(context.Background(), uuid.New(), constants.InternalStatusRefunded); !errors.Is(err, ErrEntrantPaymentNotFound) {
		t.Fatalf("want entrant not found got %v", err)
	}
}

func TestReconcileDanglingPaymentsIsolatesFailures(t *testing.T) {
	f := setupPaymentServiceTest(t)
	old := time.Now().Add(-3 * time.Hour)

	first := initiateCardPayment(t, f, validChargeRequest())
	second := initiateCardPayment(t, f, validChargeRequest())
	fresh := initiateCardPayment(t, f, validChargeRequest())
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		if err := f.db.Model(&models.Payment{}).Where("id = ?", id).Update("created_at", old).Error; err != nil {
			t.Fatalf("age payment failed: %v", err)
		}
	}

	f.card.status = constants.ExternalStatusSuccess
	summary, err := f.svc.ReconcileDanglingPayments(context.Background())
	if err != nil {
		t.Fatalf("dangling sweep failed: %v", err)
	}
	if summary.Checked != 2 || summary.Updated != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	stored, _ := f.svc.GetPayment(context.Background(), fresh.ID)
	if stored.InternalStatus != constants.InternalStatusInitiated {
		t.Fatalf("fresh payment must not be swept")
	}

	if err := f.db.Model(&models.Payment{}).Where("id = ?", fresh.ID).Update("created_at", old).Error; err != nil {
		t.Fatalf("age payment failed: %v", err)
	}
	f.card.statusErr = fmt.Errorf("%w: timeout", ErrGatewayRequestFailed)
	summary, err = f.svc.ReconcileDanglingPayments(context.Background())
	if err != nil {
		t.Fatalf("sweep should isolate per-payment errors, got %v", err)
	}
	if summary.Checked != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRequestReconcileFallsBackInline(t *testing.T) {
	f := setupPaymentServiceTest(t)
	payment := initiateCardPayment(t, f, validChargeRequest())
	f.card.status = constants.ExternalStatusSuccess

	got, err := f.svc.RequestReconcile(context.Background(), payment.ExternalID)
	if err != nil {
		t.Fatalf("request reconcile failed: %v", err)
	}
	if got.InternalStatus != constants.InternalStatusPaid {
		t.Fatalf("inline fallback should reconcile, got %s", got.InternalStatus)
	}
	if _, err := f.svc.RequestReconcile(context.Background(), "missing"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("want not found got %v", err)
	}
}

func TestListPaymentsFilters(t *testing.T) {
	f := setupPaymentServiceTest(t)
	req := validChargeRequest()
	initiateCardPayment(t, f, req)
	other := validChargeRequest()
	other.VRNs = []string{"ZZ11ZZZ"}
	initiateCardPayment(t, f, other)

	rows, total, err := f.svc.ListPayments(context.Background(), repository.PaymentListFilter{Page: 1, PageSize: 10, VRN: "ab12 c"})
	if err != nil {
		t.Fatalf("list payments failed: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("vrn filter want 1 got total=%d len=%d", total, len(rows))
	}

	from := time.Now()
	to := from.Add(-time.Hour)
	if _, _, err := f.svc.ListPayments(context.Background(), repository.PaymentListFilter{CreatedFrom: &from, CreatedTo: &to}); !errors.Is(err, ErrValidation) {
		t.Fatalf("inverted range should be rejected, got %v", err)
	}
}
