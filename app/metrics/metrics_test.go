package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func scrape(t *testing.T) string {
	t.Helper()
	e := echo.New()
	e.GET("/metrics", Handler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMiddlewareCountsRequests(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/rotation/status", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/rotation/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	body := scrape(t)
	want := `checkout_http_requests_total{endpoint="/rotation/status",method="GET",status="204"} 1`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %q in exposition", want)
	}
}

func TestRecordersExposeCollectors(t *testing.T) {
	RecordWebhookOutcome("processed")
	RecordRotationSelection("Shop A")
	RecordPaymentIntent("Shop A", "ok")

	body := scrape(t)
	for _, name := range []string{
		`checkout_webhook_events_total{outcome="processed"}`,
		`checkout_rotation_selections_total{account="Shop A"}`,
		`checkout_payment_intents_total{account="Shop A",result="ok"}`,
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in exposition", name)
		}
	}
}
