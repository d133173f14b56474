// Package txn groups DynamoDB writes into a single TransactWriteItems call so a
// multi-step mutation either commits entirely or leaves no trace.
package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-esewa-storefront/internal/aws"
)

// MaxOperations is the DynamoDB limit on operations per transaction.
const MaxOperations = 100

// CodeConditionalCheckFailed is the cancellation code of an operation whose condition did not hold.
const CodeConditionalCheckFailed = "ConditionalCheckFailed"

var (
	// ErrTooManyOperations is returned by Commit when the batch exceeds MaxOperations.
	ErrTooManyOperations = errors.New("transaction exceeds operation limit")
	// ErrConflict matches a CanceledError caused by something other than a failed
	// condition, such as a concurrent transaction or throttling. The write can be retried.
	ErrConflict = errors.New("transaction conflict")
)

// Batch collects labelled write operations.
type Batch struct {
	items  []types.TransactWriteItem
	labels []string
}

// Add appends an operation. label identifies it in a CanceledError.
func (b *Batch) Add(label string, item types.TransactWriteItem) {
	b.items = append(b.items, item)
	b.labels = append(b.labels, label)
}

// Len returns the number of queued operations.
func (b *Batch) Len() int { return len(b.items) }

// Failure is one operation that made the transaction cancel.
type Failure struct {
	Index int
	Label string
	Code  string
}

// CanceledError reports which operations failed their conditions.
type CanceledError struct {
	Failures []Failure
	Err      error
}

func (e *CanceledError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Label, f.Code))
	}
	return "transaction canceled (" + strings.Join(parts, ", ") + ")"
}

func (e *CanceledError) Unwrap() error { return e.Err }

// FailedCondition returns the first operation labelled with prefix whose
// condition check failed. Other cancellation codes never match.
func (e *CanceledError) FailedCondition(prefix string) (Failure, bool) {
	for _, f := range e.Failures {
		if f.Code == CodeConditionalCheckFailed && strings.HasPrefix(f.Label, prefix) {
			return f, true
		}
	}
	return Failure{}, false
}

// Conflict reports whether any operation was canceled for a reason other than
// its condition, e.g. TransactionConflict or ThrottlingError.
func (e *CanceledError) Conflict() bool {
	for _, f := range e.Failures {
		if f.Code != CodeConditionalCheckFailed {
			return true
		}
	}
	return false
}

// Is makes errors.Is(err, ErrConflict) true for conflict cancellations.
func (e *CanceledError) Is(target error) bool {
	return target == ErrConflict && e.Conflict()
}

// Commit executes the batch atomically.
func (b *Batch) Commit(ctx context.Context, client aws.DynamoDBAPI) error {
	if len(b.items) == 0 {
		return nil
	}
	if len(b.items) > MaxOperations {
		return fmt.Errorf("%w: %d", ErrTooManyOperations, len(b.items))
	}

	_, err := client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: b.items,
	})
	if err == nil {
		return nil
	}

	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		ce := &CanceledError{Err: err}
		for i, r := range tce.CancellationReasons {
			code := ""
			if r.Code != nil {
				code = *r.Code
			}
			if code == "" || code == "None" || i >= len(b.labels) {
				continue
			}
			ce.Failures = append(ce.Failures, Failure{Index: i, Label: b.labels[i], Code: code})
		}
		return ce
	}
	return fmt.Errorf("transact write: %w", err)
}
