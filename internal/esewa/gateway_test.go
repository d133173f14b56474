package esewa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

const testSecret = "8gBm/:&EnhH.1/q"

func callback(t *testing.T, fields map[string]interface{}, secret string) string {
	t.Helper()
	msg, ok := Message(fields["signed_field_names"].(string), func(k string) (string, bool) {
		v, ok := fields[k]
		if !ok {
			return "", false
		}
		switch x := v.(type) {
		case string:
			return x, true
		case json.Number:
			return x.String(), true
		}
		return "", false
	})
	if !ok {
		t.Fatalf("signed field missing from fixture")
	}
	fields["signature"] = Sign(secret, msg)
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func completeFields(uuid string) map[string]interface{} {
	return map[string]interface{}{
		"transaction_code":   "000AWEO",
		"status":             "COMPLETE",
		"total_amount":       json.Number("1000.0"),
		"transaction_uuid":   uuid,
		"product_code":       "EPAYTEST",
		"signed_field_names": "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",
	}
}

func statusServer(t *testing.T, status string, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		q := r.URL.Query()
		if q.Get("product_code") != "EPAYTEST" || q.Get("total_amount") != "1000" {
			t.Errorf("unexpected status query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"product_code":     q.Get("product_code"),
			"transaction_uuid": q.Get("transaction_uuid"),
			"total_amount":     1000.0,
			"status":           status,
			"ref_id":           "0001TS9",
		})
	}))
}

func TestInitiateSignsTotalUUIDAndProductCode(t *testing.T) {
	g := New(Config{}, nil, nil)
	got, err := g.Initiate(context.Background(), decimal.NewFromInt(500), "o1")
	if err != nil {
		t.Fatalf("Initiate error: %v", err)
	}
	want := Sign(testSecret, "total_amount=500,transaction_uuid=o1,product_code=EPAYTEST")
	if got.Signature != want {
		t.Fatalf("signature mismatch: got %s want %s", got.Signature, want)
	}
	if got.SignedFieldNames != SignedFieldNames || got.URL != DefaultFormURL {
		t.Fatalf("unexpected initiation: %+v", got)
	}
	if got.Fields["total_amount"] != "500" || got.Fields["signature"] != want {
		t.Fatalf("unexpected form fields: %v", got.Fields)
	}

	if _, err := g.Initiate(context.Background(), decimal.Zero, "o1"); err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestSignIsDeterministicAndKeyed(t *testing.T) {
	a := Sign(testSecret, "total_amount=100,transaction_uuid=11-201-13,product_code=EPAYTEST")
	b := Sign(testSecret, "total_amount=100,transaction_uuid=11-201-13,product_code=EPAYTEST")
	if a != b {
		t.Fatalf("signature not deterministic")
	}
	if Sign("other", "total_amount=100,transaction_uuid=11-201-13,product_code=EPAYTEST") == a {
		t.Fatalf("signature ignores the secret")
	}
	if _, err := base64.StdEncoding.DecodeString(a); err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}
}

func TestVerifyComplete(t *testing.T) {
	calls := 0
	srv := statusServer(t, "COMPLETE", &calls)
	defer srv.Close()

	g := New(Config{StatusURL: srv.URL}, srv.Client(), nil)
	v, err := g.Verify(context.Background(), callback(t, completeFields("o1"), testSecret))
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one status call, got %d", calls)
	}
	if v.TransactionCode != "000AWEO" || v.TransactionUUID != "o1" || v.Status != "COMPLETE" {
		t.Fatalf("unexpected verification: %+v", v)
	}
	if !v.TotalAmount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected amount: %s", v.TotalAmount)
	}
	if len(v.Decoded) == 0 || len(v.Response) == 0 {
		t.Fatalf("expected raw payloads to be kept")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	calls := 0
	srv := statusServer(t, "COMPLETE", &calls)
	defer srv.Close()
	g := New(Config{StatusURL: srv.URL}, srv.Client(), nil)

	forged := callback(t, completeFields("o1"), "wrong-secret")
	if _, err := g.Verify(context.Background(), forged); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	fields := completeFields("o1")
	data := callback(t, fields, testSecret)
	raw, _ := base64.StdEncoding.DecodeString(data)
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	m["transaction_uuid"] = "o2"
	tampered, _ := json.Marshal(m)
	if _, err := g.Verify(context.Background(), base64.StdEncoding.EncodeToString(tampered)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for modified field, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("status api must not be called for bad signatures")
	}
}

func TestVerifyMalformed(t *testing.T) {
	g := New(Config{}, nil, nil)
	for _, data := range []string{"", "%%%", base64.StdEncoding.EncodeToString([]byte("not json"))} {
		if _, err := g.Verify(context.Background(), data); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("data %q: expected ErrMalformedPayload, got %v", data, err)
		}
	}
}

func TestVerifyRequiresTransactionCode(t *testing.T) {
	calls := 0
	srv := statusServer(t, "COMPLETE", &calls)
	defer srv.Close()
	g := New(Config{StatusURL: srv.URL}, srv.Client(), nil)

	fields := completeFields("o1")
	delete(fields, "transaction_code")
	fields["signed_field_names"] = "status,total_amount,transaction_uuid,product_code,signed_field_names"
	data := callback(t, fields, testSecret)

	if _, err := g.Verify(context.Background(), data); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("status api called %d times for a payload without transaction_code", calls)
	}
}

func TestVerifyStatusNotComplete(t *testing.T) {
	calls := 0
	srv := statusServer(t, "PENDING", &calls)
	defer srv.Close()
	g := New(Config{StatusURL: srv.URL}, srv.Client(), nil)

	if _, err := g.Verify(context.Background(), callback(t, completeFields("o1"), testSecret)); !errors.Is(err, ErrNotComplete) {
		t.Fatalf("expected ErrNotComplete, got %v", err)
	}
}

func TestVerifyStatusHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	g := New(Config{StatusURL: srv.URL}, srv.Client(), nil)

	if _, err := g.Verify(context.Background(), callback(t, completeFields("o1"), testSecret)); !errors.Is(err, ErrStatusCheck) {
		t.Fatalf("expected ErrStatusCheck, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount("1,000.50")
	if err != nil {
		t.Fatalf("parseAmount error: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("1000.5")) {
		t.Fatalf("unexpected amount %s", d)
	}
	if _, err := parseAmount("abc"); err == nil {
		t.Fatalf("expected error")
	}
}
