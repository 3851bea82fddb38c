package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/goliatone/go-webhook-ingest/core"
)

type VerdictReason string

const (
	VerdictValid            VerdictReason = "valid"
	VerdictMissingSecret    VerdictReason = "missing_secret"
	VerdictMissingSignature VerdictReason = "missing_signature"
	VerdictMismatch         VerdictReason = "mismatch"
	VerdictReplayWindow     VerdictReason = "replay_window"
)

// Verdict is the authenticity decision for one body. Reason is for logs and
// metrics only and must not reach the sender.
type Verdict struct {
	Valid  bool
	Reason VerdictReason
}

// HMACVerifier checks X-Shopify-Hmac-Sha256 style signatures: the base64
// HMAC-SHA256 of the raw body keyed with the shared secret.
type HMACVerifier struct {
	key []byte
}

// NewHMACVerifier decodes secret once using encoding. An empty secret is
// accepted and rejects every signature.
func NewHMACVerifier(secret string, encoding core.SecretEncoding) (*HMACVerifier, error) {
	key, err := core.WebhookConfig{Secret: secret, SecretEncoding: encoding}.SecretKey()
	if err != nil {
		return nil, err
	}
	return &HMACVerifier{key: key}, nil
}

func (v *HMACVerifier) Verify(raw []byte, signatureHeader string) Verdict {
	if v == nil || len(v.key) == 0 {
		return Verdict{Reason: VerdictMissingSecret}
	}
	signature := strings.TrimSpace(signatureHeader)
	if signature == "" {
		return Verdict{Reason: VerdictMissingSignature}
	}
	expected := Sign(v.key, raw)
	// ConstantTimeCompare returns early only on length, which is public.
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return Verdict{Reason: VerdictMismatch}
	}
	return Verdict{Valid: true, Reason: VerdictValid}
}

// Sign returns base64(HMAC-SHA256(key, raw)).
func Sign(key []byte, raw []byte) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(raw)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// BodyDigest is the hex SHA-256 of the raw body, stored for audit.
func BodyDigest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
