package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveGatewayCallCountsResults(t *testing.T) {
	before := testutil.ToFloat64(gatewayRequests.WithLabelValues("CREDIT_DEBIT_CARD", "create", "error"))
	ObserveGatewayCall("CREDIT_DEBIT_CARD", "create", time.Now(), errors.New("boom"))
	after := testutil.ToFloat64(gatewayRequests.WithLabelValues("CREDIT_DEBIT_CARD", "create", "error"))
	if after-before != 1 {
		t.Fatalf("expected error counter to grow by 1, got %v", after-before)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	IncReconciliation("DIRECT_DEBIT", "unchanged")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "caz_reconciliations_total") {
		t.Fatalf("metrics output should contain reconciliation counter")
	}
}
