package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/credentials"
	"github.com/caz-payments/internal/models"
	"github.com/caz-payments/internal/payment/directdebit"
	"github.com/caz-payments/internal/payment/govukpay"

	"github.com/google/uuid"
)

func newTestKeyStore(zoneID uuid.UUID) *credentials.Store {
	keys := map[string]string{zoneID.String(): "zone-api-key"}
	return credentials.NewStore(credentials.NewConfigSource(keys, keys))
}

func TestCardGatewayCreateAndFetch(t *testing.T) {
	zoneID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer zone-api-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payments":
			_, _ = w.Write([]byte(`{"payment_id":"card-1","state":{"status":"created"},"_links":{"next_url":{"href":"https://pay.example/card-1"}}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payments/card-1":
			_, _ = w.Write([]byte(`{"payment_id":"card-1","state":{"status":"success"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := govukpay.NewClient(govukpay.Config{APIBaseURL: server.URL, Timeout: time.Second, RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	gateway := NewCardGateway(client, newTestKeyStore(zoneID))
	payment := &models.Payment{
		Reference:      "CAZ1",
		TotalPaid:      1600,
		CleanAirZoneID: zoneID,
		ReturnURL:      "https://example.com/return",
	}

	result, err := gateway.CreateExternalPayment(context.Background(), payment)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if result.ExternalID != "card-1" || result.Status != constants.ExternalStatusCreated || result.NextURL != "https://pay.example/card-1" {
		t.Fatalf("unexpected result %+v", result)
	}

	payment.ExternalID = result.ExternalID
	status, err := gateway.FetchExternalStatus(context.Background(), payment)
	if err != nil || status != constants.ExternalStatusSuccess {
		t.Fatalf("want SUCCESS got %s err=%v", status, err)
	}
}

func TestCardGatewayMapsErrors(t *testing.T) {
	zoneID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/weird") {
			_, _ = w.Write([]byte(`{"payment_id":"weird","state":{"status":"teleported"}}`))
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"P0102"}`))
	}))
	defer server.Close()

	client, err := govukpay.NewClient(govukpay.Config{APIBaseURL: server.URL, Timeout: time.Second, RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	gateway := NewCardGateway(client, newTestKeyStore(zoneID))

	_, err = gateway.CreateExternalPayment(context.Background(), &models.Payment{
		Reference:      "CAZ2",
		TotalPaid:      100,
		CleanAirZoneID: zoneID,
		ReturnURL:      "https://example.com/return",
	})
	if !errors.Is(err, ErrGatewayRequestRejected) {
		t.Fatalf("4xx should map to rejected, got %v", err)
	}

	_, err = gateway.FetchExternalStatus(context.Background(), &models.Payment{ExternalID: "weird", CleanAirZoneID: zoneID})
	if !errors.Is(err, ErrUnmappedExternalStatus) {
		t.Fatalf("unknown status should map to unmapped, got %v", err)
	}

	_, err = gateway.FetchExternalStatus(context.Background(), &models.Payment{ExternalID: "card-1", CleanAirZoneID: uuid.New()})
	if !errors.Is(err, ErrCredentialNotConfigured) {
		t.Fatalf("unknown zone should be a credential error, got %v", err)
	}
}

func TestDirectDebitGatewayCollapsesStatus(t *testing.T) {
	zoneID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/directdebit/payments":
			_, _ = w.Write([]byte(`{"payment_id":"dd-1","amount":800,"reference":"CAZ3","mandate_id":"m-1","state":{"status":"pending"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/directdebit/payments/dd-1":
			_, _ = w.Write([]byte(`{"payment_id":"dd-1","amount":800,"reference":"CAZ3","mandate_id":"m-1","state":{"status":"expired"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/directdebit/mandates/m-1":
			_, _ = w.Write([]byte(`{"mandate_id":"m-1","provider_id":"p-1","reference":"CAZDD1","state":{"status":"active"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := directdebit.NewClient(directdebit.Config{APIBaseURL: server.URL, Timeout: time.Second, RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	gateway := NewDirectDebitGateway(client, newTestKeyStore(zoneID))
	payment := &models.Payment{Reference: "CAZ3", TotalPaid: 800, CleanAirZoneID: zoneID, MandateID: "m-1"}

	result, err := gateway.CreateExternalPayment(context.Background(), payment)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if result.Status != constants.ExternalStatusSuccess {
		t.Fatalf("pending should collapse to SUCCESS, got %s", result.Status)
	}

	payment.ExternalID = result.ExternalID
	status, err := gateway.FetchExternalStatus(context.Background(), payment)
	if err != nil || status != constants.ExternalStatusError {
		t.Fatalf("expired should collapse to ERROR, got %s err=%v", status, err)
	}

	mandate, err := gateway.GetMandate(context.Background(), zoneID, "m-1")
	if err != nil || mandate.Status != directdebit.MandateStatusActive {
		t.Fatalf("unexpected mandate %+v err=%v", mandate, err)
	}
}
