package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BrianStatesThat/thepepassport/internal/captcha"
	"github.com/BrianStatesThat/thepepassport/internal/config"
	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/logger"
)

const routerFixture = `
categories:
  - {id: cat-1, name: Eat, slug: eat}
listings:
  - id: "1"
    slug: old-harbour-grill
    title: Old Harbour Grill
    categories: [Eat]
    featured: true
    created_at: "2024-01-01T10:00:00Z"
  - id: "2"
    slug: jazz-cellar
    name: Jazz Cellar
    category_ids: [cat-1]
    created_at: "2024-02-01T10:00:00Z"
blog_posts:
  - {id: p1, slug: surf, title: Surfing Summerstrand, published_at: "2024-04-01T08:00:00Z"}
enquiries: []
`

type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		SiteURL:                 "https://thepepassport.co.za",
		RateLimitSoftBucketSize: 100,
		RateLimitSoftRefillRate: 100,
		RateLimitHardBucketSize: 100,
		RateLimitHardRefillRate: 100,
	}
	store, err := db.ParseMemoryFixture([]byte(routerFixture))
	require.NoError(t, err)
	svc, err := NewServices(cfg, store, nil, logger.Discard())
	require.NoError(t, err)
	return SetupRouter(cfg, svc, captcha.NewTurnstileVerifier(cfg), nil, logger.Discard())
}

func request(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestSetupRouter_Ping(t *testing.T) {
	w, _ := request(newTestRouter(t), "GET", "/v1/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSetupRouter_CategoryFallbackEndToEnd(t *testing.T) {
	r := newTestRouter(t)

	w, body := request(r, "GET", "/v1/listings?category=Eat", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "categories", body["resolution"])
	assert.Equal(t, float64(1), body["total"])

	w, body = request(r, "GET", "/v1/categories/Eat/listings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)
}

func TestSetupRouter_ListingBySlug(t *testing.T) {
	r := newTestRouter(t)

	w, body := request(r, "GET", "/v1/listings/jazz-cellar", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Jazz Cellar", data["title"])

	w, _ = request(r, "GET", "/v1/listings/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetupRouter_MissingTableDegrades(t *testing.T) {
	w, body := request(newTestRouter(t), "GET", "/v1/listings/featured", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, body = request(newTestRouter(t), "GET", "/v1/events?upcoming=false", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["data"])
}

func TestSetupRouter_SubmitEnquiry(t *testing.T) {
	r := newTestRouter(t)

	w, body := request(r, "POST", "/v1/enquiries", `{"name":"Ann","email":"ann@example.com","message":"Groups?"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["reference"], 10)

	w, _ = request(r, "POST", "/v1/enquiries", `{"name":"Ann"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetupRouter_Sitemap(t *testing.T) {
	w, _ := request(newTestRouter(t), "GET", "/sitemap.xml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<loc>https://thepepassport.co.za/listings/jazz-cellar</loc>")
	assert.Contains(t, w.Body.String(), "<loc>https://thepepassport.co.za/blog/surf</loc>")
}

func TestSetupRouter_CORSPreflight(t *testing.T) {
	w, _ := request(newTestRouter(t), "OPTIONS", "/v1/enquiries", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSetupServiceRouter_Shutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	shutdown := make(chan struct{}, 1)
	r := SetupServiceRouter(&config.Config{}, nil, nil, shutdown)

	w, body := request(r, "POST", "/api", `{"method":"shutdown"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatal("shutdown not signaled")
	}

	w, _ = request(r, "POST", "/api", `{"method":"shutdown"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupServiceRouter_PublishSitemap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client := new(MockAsynqClient)
	client.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == "sitemap:publish"
	}), mock.Anything).Return(&asynq.TaskInfo{ID: "sitemap:publish:1"}, nil).Once()
	r := SetupServiceRouter(&config.Config{}, nil, client, make(chan struct{}, 1))

	w, body := request(r, "POST", "/api", `{"method":"publishSitemap"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sitemap:publish:1", body["result"])

	failing := new(MockAsynqClient)
	failing.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))
	r = SetupServiceRouter(&config.Config{}, nil, failing, make(chan struct{}, 1))
	w, _ = request(r, "POST", "/api", `{"method":"publishSitemap"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSetupServiceRouter_PublishSitemapAlreadyQueued(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client := new(MockAsynqClient)
	client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, asynq.ErrTaskIDConflict).Once()
	r := SetupServiceRouter(&config.Config{}, nil, client, make(chan struct{}, 1))

	w, body := request(r, "POST", "/api", `{"method":"publishSitemap"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Sitemap publish already queued", body["message"])
	assert.True(t, strings.HasPrefix(body["result"].(string), "sitemap:publish:"))
	client.AssertExpectations(t)
}

func TestSetupServiceRouter_Errors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupServiceRouter(&config.Config{}, nil, nil, make(chan struct{}, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api", bytes.NewBufferString("nope"))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = request(r, "POST", "/api", `{"method":"getTestEmail","arguments":["enquiry","a@b.co"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = request(r, "POST", "/api", `{"method":"publishSitemap"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = request(r, "POST", "/api", `{"method":"launchRockets"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
