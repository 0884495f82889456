package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// SignHex returns the hex HMAC-SHA256 of msg under secret.
func SignHex(secret, msg []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)

	return hex.EncodeToString(mac.Sum(nil))
}

// SignBase64 returns the base64 HMAC-SHA256 of msg under secret.
func SignBase64(secret, msg []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignaturesEqual compares two signature strings in constant time.
func SignaturesEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
