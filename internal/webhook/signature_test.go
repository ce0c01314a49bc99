package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign_Deterministic(t *testing.T) {
	body := []byte(`{"event":"document.accepted"}`)

	first := Sign("whsec_abc123", body)
	second := Sign("whsec_abc123", body)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "HMAC-SHA256 en hexadecimal son 64 caracteres")
}

func TestVerify_RoundTrip(t *testing.T) {
	body := []byte(`{"event":"document.accepted","data":{"id":"x"}}`)
	sig := Sign("whsec_abc123", body)

	assert.True(t, Verify("whsec_abc123", body, sig))
}

func TestVerify_TamperedBodyFails(t *testing.T) {
	body := []byte(`{"event":"document.accepted","total":"118.00"}`)
	sig := Sign("whsec_abc123", body)

	tampered := make([]byte, len(body))
	copy(tampered, body)
	tampered[len(tampered)-4] ^= 0x01

	assert.False(t, Verify("whsec_abc123", tampered, sig))
}

func TestVerify_WrongSecretFails(t *testing.T) {
	body := []byte(`{"event":"document.rejected"}`)
	sig := Sign("whsec_abc123", body)

	assert.False(t, Verify("whsec_other", body, sig))
}

func TestVerify_DifferentSecretsDifferentSignatures(t *testing.T) {
	body := []byte(`{"event":"document.error"}`)

	assert.NotEqual(t, Sign("secret-a", body), Sign("secret-b", body))
}
