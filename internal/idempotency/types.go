package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// DefaultLease is how long an IN_PROGRESS claim blocks other workers before it
// is considered abandoned.
const DefaultLease = 2 * time.Minute

// IdempotencyRecord is the shape persisted in the idempotency DynamoDB table.
type IdempotencyRecord struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	OwnerID        string    `dynamodbav:"owner_id,omitempty"` // entity holding the claim
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at,omitempty"`  // TTL epoch seconds, 0 = never
	LeaseUntil     int64     `dynamodbav:"lease_until,omitempty"` // epoch seconds after which an IN_PROGRESS claim may be taken over
	Note           string    `dynamodbav:"note,omitempty"`
}

// OrderRefKey is the claim key that keeps an external order reference unique.
func OrderRefKey(ref string) string { return "order-ref#" + ref }

// CallbackKey is the replay-guard key for a gateway transaction.
func CallbackKey(gateway, transactionCode string) string { return gateway + "#" + transactionCode }

// AccountKey is the claim key that keeps a user's username, email or phone unique.
func AccountKey(field, value string) string { return "user-" + field + "#" + value }

// EventKey guards a queued event against redelivery.
func EventKey(eventID string) string { return "event#" + eventID }
