package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign calcula la firma HMAC-SHA256 del cuerpo con el secreto de la
// suscripción, codificada en hexadecimal
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify valida una firma recibida contra el cuerpo en tiempo constante.
// Lo usan los consumidores para autenticar la notificación.
func Verify(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
