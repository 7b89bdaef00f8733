package esewa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anishmaharjan/kinmel-backend/pkg/config"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
)

func testClient(statusURL string) *Client {
	return NewClient(config.EsewaConfig{
		SecretKey:   "secret",
		ProductCode: "EPAYTEST",
		StatusURL:   statusURL,
		HTTPTimeout: 2 * time.Second,
	})
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("product_code") != "EPAYTEST" {
			t.Errorf("product_code = %q", q.Get("product_code"))
		}
		if q.Get("transaction_uuid") != "tx-1" {
			t.Errorf("transaction_uuid = %q", q.Get("transaction_uuid"))
		}
		if q.Get("total_amount") != "170.00" {
			t.Errorf("total_amount = %q", q.Get("total_amount"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"product_code":"EPAYTEST","transaction_uuid":"tx-1","total_amount":170.0,"status":"COMPLETE","ref_id":"0001TX"}`))
	}))
	defer srv.Close()

	status, err := testClient(srv.URL).CheckStatus(context.Background(), "170.00", "tx-1")
	if err != nil {
		t.Fatalf("check status failed: %v", err)
	}
	if status.Status != StatusComplete {
		t.Fatalf("status = %q, want COMPLETE", status.Status)
	}
	if status.RefID != "0001TX" {
		t.Fatalf("ref_id = %q, want 0001TX", status.RefID)
	}
}

func TestCheckStatusNon2xxIsDependencyError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CheckStatus(context.Background(), "10.00", "tx-2")
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCheckStatusBadJSONIsDependencyError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CheckStatus(context.Background(), "10.00", "tx-3")
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCheckStatusUnreachableGateway(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testClient(srv.URL).CheckStatus(context.Background(), "10.00", "tx-4")
	if err == nil {
		t.Fatal("expected error for unreachable gateway")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
