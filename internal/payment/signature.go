package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"orderpay-be/internal/config"
)

// Sign returns the lowercase hex HMAC-SHA256 of "ref|paymentID" keyed by
// secret. It is the signature the gateway attaches to a payment callback.
func Sign(ref, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ref + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time. Anything but the exact lowercase
// hex digest fails, and an empty secret never verifies.
func VerifySignature(ref, paymentID, signature, secret string) bool {
	if secret == "" || ref == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := Sign(ref, paymentID, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// Verifier holds the callback secret so callers never pass it around.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: payment webhook secret is empty", config.ErrConfiguration)
	}
	return &Verifier{secret: secret}, nil
}

func (v *Verifier) Verify(ref, paymentID, signature string) bool {
	return VerifySignature(ref, paymentID, signature, v.secret)
}

func (v *Verifier) Sign(ref, paymentID string) string {
	return Sign(ref, paymentID, v.secret)
}
