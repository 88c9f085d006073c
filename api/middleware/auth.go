package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagewalk/models"
)

// KeyIDContext is where Auth stores a short fingerprint of the caller's
// key. The key itself never leaves the middleware.
const KeyIDContext = "pagewalk.key_id"

// Auth returns API-key authentication middleware. A key is accepted from
// either header:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// With no usable keys the middleware lets every request through.
func Auth(apiKeys []string) gin.HandlerFunc {
	var digests [][sha256.Size]byte
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := presentedKey(c.Request)
		if key == "" {
			unauthorized(c, ErrMissingAPIKey)
			return
		}
		sum := sha256.Sum256([]byte(key))
		if !knownKey(digests, sum) {
			unauthorized(c, ErrInvalidAPIKey)
			return
		}
		c.Set(KeyIDContext, hex.EncodeToString(sum[:6]))
		c.Next()
	}
}

// knownKey compares against every digest so the time taken does not depend
// on which key matched.
func knownKey(digests [][sha256.Size]byte, sum [sha256.Size]byte) bool {
	match := 0
	for _, d := range digests {
		match |= subtle.ConstantTimeCompare(d[:], sum[:])
	}
	return match == 1
}

func presentedKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func unauthorized(c *gin.Context, err error) {
	c.Header("WWW-Authenticate", `Bearer realm="pagewalk"`)
	abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, err)
}
