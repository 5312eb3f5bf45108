package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"support_router_backend/platform/apperr"
	"support_router_backend/platform/httpkit"
	"support_router_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	HeaderHubSignature    = "X-Hub-Signature-256"
	HeaderTicketSignature = "X-Ticket-Signature"

	signaturePrefix = "sha256="
	maxBodyBytes    = 1 << 20
)

// SignatureRequired rejects requests whose header does not carry the
// HMAC-SHA256 of the raw body under secret. The body is restored for the
// handler.
func SignatureRequired(source, header, secret string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil || len(body) > maxBodyBytes {
			log.WebhookRejected(source, "unreadable or oversized body", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "invalid body"})
			return
		}

		if !ValidSignature(secret, c.GetHeader(header), body) {
			log.WebhookRejected(source, "bad signature", c.ClientIP())
			httpkit.HandleError(c, apperr.Unauthorized("invalid signature"))
			c.Abort()
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// ValidSignature checks a "sha256=<hex>" header against body.
func ValidSignature(secret, header string, body []byte) bool {
	if secret == "" || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(secret, body))
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeader formats a header value for body.
func SignatureHeader(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(Sign(secret, body))
}
