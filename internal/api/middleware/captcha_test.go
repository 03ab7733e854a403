package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/BrianStatesThat/thepepassport/internal/captcha"
	"github.com/BrianStatesThat/thepepassport/internal/config"
)

// MockTurnstileVerifier
type MockTurnstileVerifier struct {
	mock.Mock
}

func (m *MockTurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	args := m.Called(ctx, token, remoteIP)
	return args.Bool(0), args.Error(1)
}

func (m *MockTurnstileVerifier) GenerateHumanToken(subject, ip, spaSession string, ttl time.Duration) (string, error) {
	args := m.Called(subject, ip, spaSession, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockTurnstileVerifier) ValidateHumanToken(tokenString, ip, spaSession string) bool {
	args := m.Called(tokenString, ip, spaSession)
	return args.Bool(0)
}

func setupCaptchaTestEngine(cfg *config.Config, verifier captcha.ITurnstileVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CaptchaMiddleware(cfg, verifier))
	r.GET("/test", func(c *gin.Context) {
		isHuman := c.GetBool(ContextKeyIsHumanVerified)
		c.JSON(http.StatusOK, gin.H{"is_human": isHuman, "xct": c.Writer.Header().Get("X-C-T")})
	})
	return r
}

func decodeCaptchaBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCaptchaMiddleware_NoHeaders(t *testing.T) {
	mockVerifier := new(MockTurnstileVerifier)
	router := setupCaptchaTestEngine(&config.Config{}, mockVerifier)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeCaptchaBody(t, w)
	assert.False(t, body["is_human"].(bool))
	assert.Empty(t, body["xct"])
	mockVerifier.AssertNotCalled(t, "Verify")
	mockVerifier.AssertNotCalled(t, "ValidateHumanToken")
	mockVerifier.AssertNotCalled(t, "GenerateHumanToken")
}

func TestCaptchaMiddleware_ValidXCV(t *testing.T) {
	cfg := &config.Config{CaptchaTokenTTL: 10 * time.Minute}
	mockVerifier := new(MockTurnstileVerifier)
	router := setupCaptchaTestEngine(cfg, mockVerifier)

	mockVerifier.On("Verify", mock.Anything, "challenge", "1.1.1.1").Return(true, nil).Once()
	mockVerifier.On("GenerateHumanToken", "", "1.1.1.1", "sess1", 10*time.Minute).Return("issued-token", nil).Once()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "1.1.1.1:1234"
	req.Header.Set("X-C-V", "challenge")
	req.Header.Set("X-SPA", "sess1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeCaptchaBody(t, w)
	assert.True(t, body["is_human"].(bool))
	assert.Equal(t, "issued-token", body["xct"])
	mockVerifier.AssertExpectations(t)
}

func TestCaptchaMiddleware_InvalidXCV(t *testing.T) {
	mockVerifier := new(MockTurnstileVerifier)
	router := setupCaptchaTestEngine(&config.Config{}, mockVerifier)

	mockVerifier.On("Verify", mock.Anything, "bad", "2.2.2.2").Return(false, nil).Once()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "2.2.2.2:1234"
	req.Header.Set("X-C-V", "bad")
	router.ServeHTTP(w, req)

	body := decodeCaptchaBody(t, w)
	assert.False(t, body["is_human"].(bool))
	assert.Empty(t, body["xct"])
	mockVerifier.AssertNotCalled(t, "GenerateHumanToken")
	mockVerifier.AssertExpectations(t)
}

func TestCaptchaMiddleware_VerifyErrorIsNotHuman(t *testing.T) {
	mockVerifier := new(MockTurnstileVerifier)
	router := setupCaptchaTestEngine(&config.Config{}, mockVerifier)

	mockVerifier.On("Verify", mock.Anything, "challenge", mock.Anything).Return(false, errors.New("timeout")).Once()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-C-V", "challenge")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeCaptchaBody(t, w)["is_human"].(bool))
}

func TestCaptchaMiddleware_ValidXCT(t *testing.T) {
	mockVerifier := new(MockTurnstileVerifier)
	router := setupCaptchaTestEngine(&config.Config{}, mockVerifier)

	mockVerifier.On("ValidateHumanToken", "human", "3.3.3.3", "sess3").Return(true).Once()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "3.3.3.3:1234"
	req.Header.Set("X-C-T", "human")
	req.Header.Set("X-C-V", "ignored")
	req.Header.Set("X-SPA", "sess3")
	router.ServeHTTP(w, req)

	assert.True(t, decodeCaptchaBody(t, w)["is_human"].(bool))
	mockVerifier.AssertNotCalled(t, "Verify")
	mockVerifier.AssertExpectations(t)
}
