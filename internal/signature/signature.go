// Package signature holds the pure verification and signing primitives for
// both webhook directions. Everything here operates on the exact bytes
// received or sent over the wire; callers must not re-serialize payloads
// before verifying.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const sha256Prefix = "sha256="

// VerifySHA256 checks a hex-encoded HMAC-SHA256 signature over rawBody.
// The header value may carry the "sha256=" prefix used by Meta's
// X-Hub-Signature-256. Comparison is constant time.
func VerifySHA256(rawBody []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(sig, sha256Prefix)
	if sig == "" || secret == "" {
		return false
	}

	provided, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), provided)
}

// VerifyBase64SHA256 checks a base64-encoded HMAC-SHA256 signature over
// rawBody, the scheme Twitter uses for x-twitter-webhooks-signature.
func VerifyBase64SHA256(rawBody []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(sig, sha256Prefix)
	if sig == "" || secret == "" {
		return false
	}

	provided, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), provided)
}

// CRCResponseToken answers a Twitter-style CRC liveness probe. The response
// body must carry "sha256=" + base64(HMAC_SHA256(crc_token, consumerSecret)).
func CRCResponseToken(crcToken, consumerSecret string) string {
	mac := hmac.New(sha256.New, []byte(consumerSecret))
	mac.Write([]byte(crcToken))
	return sha256Prefix + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignEnvelope produces the hex HMAC-SHA256 signature carried in
// X-Webhook-Signature on outbound deliveries.
func SignEnvelope(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
