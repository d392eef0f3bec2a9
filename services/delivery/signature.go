package delivery

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Outbound webhook headers. Receivers verify the signature by recomputing
// the HMAC from the timestamp header and the raw body.
const (
	HeaderSignature = "X-Vayva-Signature"
	HeaderTimestamp = "X-Vayva-Timestamp"
	HeaderEventType = "X-Vayva-Event-Type"
)

// Sign computes the hex HMAC-SHA256 over "{timestampMillis}.{payload}" with
// the endpoint's signing secret.
func Sign(secret string, timestampMillis int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestampMillis, payload)
	return hex.EncodeToString(mac.Sum(nil))
}
