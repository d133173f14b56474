// Package payments records verified gateway payments and defines the boundary
// every payment gateway adapter implements.
package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// StatusSuccess is the only status a recorded payment carries.
const StatusSuccess = "success"

// OrderIndex is the GSI on order_id.
const OrderIndex = "order_id-index"

// Payment is an append-only record of a reconciled gateway payment.
type Payment struct {
	PaymentID               string          `dynamodbav:"payment_id" json:"id"` // <gateway>:<transaction_code>
	Pidx                    string          `dynamodbav:"pidx,omitempty" json:"pidx,omitempty"`
	TransactionID           string          `dynamodbav:"transaction_id" json:"transactionId"`
	OrderID                 string          `dynamodbav:"order_id" json:"orderId"`
	Amount                  float64         `dynamodbav:"amount" json:"amount"`
	DataFromVerificationReq json.RawMessage `dynamodbav:"data_from_verification_req,omitempty" json:"dataFromVerificationReq,omitempty"`
	APIQueryFromUser        json.RawMessage `dynamodbav:"api_query_from_user,omitempty" json:"apiQueryFromUser,omitempty"`
	PaymentGateway          string          `dynamodbav:"payment_gateway" json:"paymentGateway"`
	Status                  string          `dynamodbav:"status" json:"status"`
	PaymentDate             time.Time       `dynamodbav:"payment_date" json:"paymentDate"`
}

// ID builds the deterministic payment id for a gateway transaction.
func ID(gateway, transactionCode string) string {
	return gateway + ":" + transactionCode
}

// Initiation is what a client needs to hand the customer over to the gateway.
type Initiation struct {
	URL              string            `json:"url"`
	Signature        string            `json:"signature"`
	SignedFieldNames string            `json:"signed_field_names"`
	Fields           map[string]string `json:"fields"`
}

// Verification is a callback payload the gateway has vouched for.
type Verification struct {
	TransactionCode string
	TransactionUUID string
	Status          string
	TotalAmount     decimal.Decimal
	// Decoded is the callback payload as received.
	Decoded json.RawMessage
	// Response is the gateway's status-check answer.
	Response json.RawMessage
}

// Gateway is a payment gateway adapter.
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, amount decimal.Decimal, transactionUUID string) (*Initiation, error)
	Verify(ctx context.Context, data string) (*Verification, error)
}
