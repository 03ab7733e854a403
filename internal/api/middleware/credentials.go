package middleware

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/BrianStatesThat/thepepassport/internal/auth"
	"github.com/BrianStatesThat/thepepassport/internal/db"
)

const (
	// ContextKeyCredentials holds the request's db.Credentials in Gin context.
	ContextKeyCredentials = "credentials"

	// AccessTokenCookie is the session cookie set by the hosted auth client.
	AccessTokenCookie = "sb-access-token"
)

// CredentialsMiddleware resolves who the request runs as. A bearer token
// wins over the session cookie. Missing or invalid tokens never abort the
// request; it simply runs as db.Anonymous.
func CredentialsMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		creds := db.Anonymous
		if token := accessToken(c); token != "" {
			claims, err := auth.ValidateJWT(token, jwtSecret)
			if err != nil {
				slog.Debug("ignoring access token", "err", err)
			} else {
				creds = claims.Credentials()
			}
		}
		c.Set(ContextKeyCredentials, creds)
		c.Next()
	}
}

func accessToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}

// Credentials returns the credentials set by CredentialsMiddleware, or
// db.Anonymous when it did not run.
func Credentials(c *gin.Context) db.Credentials {
	if v, ok := c.Get(ContextKeyCredentials); ok {
		if creds, ok := v.(db.Credentials); ok {
			return creds
		}
	}
	return db.Anonymous
}
