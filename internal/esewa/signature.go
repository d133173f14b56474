package esewa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignedFieldNames is the field list signed on payment initiation.
const SignedFieldNames = "total_amount,transaction_uuid,product_code"

// Sign returns base64(HMAC-SHA256(secret, message)).
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Message builds the "k=v,k=v" string eSewa signs, in the order of fieldNames.
func Message(fieldNames string, lookup func(string) (string, bool)) (string, bool) {
	names := strings.Split(fieldNames, ",")
	parts := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		v, ok := lookup(n)
		if !ok {
			return "", false
		}
		parts = append(parts, n+"="+v)
	}
	return strings.Join(parts, ","), true
}

// ValidSignature compares signatures in constant time.
func ValidSignature(secret, message, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, message)), []byte(signature))
}
