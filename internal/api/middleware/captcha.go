package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/BrianStatesThat/thepepassport/internal/captcha"
	"github.com/BrianStatesThat/thepepassport/internal/config"
)

const (
	// ContextKeyIsHumanVerified holds the key for captcha status in Gin context.
	ContextKeyIsHumanVerified = "isHumanVerified"
)

// CaptchaMiddleware handles Cloudflare Turnstile verification (X-C-V) and token (X-C-T) checks.
func CaptchaMiddleware(cfg *config.Config, verifier captcha.ITurnstileVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		spaSession := c.GetHeader("X-SPA")
		humanToken := c.GetHeader("X-C-T")
		challenge := c.GetHeader("X-C-V")

		isHuman := humanToken != "" && verifier.ValidateHumanToken(humanToken, clientIP, spaSession)

		if !isHuman && challenge != "" {
			verified, err := verifier.Verify(c.Request.Context(), challenge, clientIP)
			if err != nil {
				// treated as not human; the rate limiter decides what happens next
				slog.Warn("turnstile verification error", "ip", clientIP, "err", err)
			} else if verified {
				isHuman = true
				token, err := verifier.GenerateHumanToken(Credentials(c).Subject, clientIP, spaSession, cfg.CaptchaTokenTTL)
				if err != nil {
					slog.Error("failed to issue X-C-T token", "err", err)
				} else {
					c.Header("X-C-T", token)
				}
			}
		}

		c.Set(ContextKeyIsHumanVerified, isHuman)
		c.Next()
	}
}
