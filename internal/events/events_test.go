package events

import "testing"

func TestNewAndDecode(t *testing.T) {
	env, err := New(TypeOrderPlaced, "storefront-api", "o1", OrderPayload{OrderID: "o1", OrderRef: "O1", Items: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if env.EventID == "" || env.EventVersion != 1 {
		t.Fatalf("envelope not populated: %+v", env)
	}

	p, err := Decode[OrderPayload](env)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.OrderRef != "O1" || p.Items != 2 {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecode_BadPayload(t *testing.T) {
	env := Envelope{EventType: TypePaymentCompleted, Payload: []byte(`"nope"`)}
	if _, err := Decode[PaymentPayload](env); err == nil {
		t.Fatal("expected decode error")
	}
}
