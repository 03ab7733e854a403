package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/BrianStatesThat/thepepassport/internal/api/handlers"
	"github.com/BrianStatesThat/thepepassport/internal/models"
	"github.com/BrianStatesThat/thepepassport/internal/services"
)

func setupEnquiryRouter(svc services.IEnquiryService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers.RegisterRestEnquiryRoutes(r, handlers.NewRestEnquiryHandler(svc))
	return r
}

func doPost(r *gin.Engine, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestRestEnquiryHandler_SubmitEnquiry(t *testing.T) {
	mockSvc := new(MockEnquiryService)
	mockSvc.On("SubmitEnquiry", mock.Anything, mock.Anything, models.Enquiry{Name: "Ann", Email: "ann@example.com", Message: "Hi"}).
		Return(&models.Enquiry{ID: "e1", Reference: "ABCDEFGHJK", Name: "Ann", Status: models.EnquiryStatusNew}, nil).Once()

	w, body := doPost(setupEnquiryRouter(mockSvc), "/enquiries", `{"name":"Ann","email":"ann@example.com","message":"Hi","status":""}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ABCDEFGHJK", data["reference"])
	assert.Equal(t, "new", data["status"])
	mockSvc.AssertExpectations(t)
}

func TestRestEnquiryHandler_SubmitEnquiry_Invalid(t *testing.T) {
	mockSvc := new(MockEnquiryService)
	mockSvc.On("SubmitEnquiry", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: email is required", services.ErrInvalidEnquiry)).Once()

	w, body := doPost(setupEnquiryRouter(mockSvc), "/enquiries", `{"name":"Ann"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email is required", body["error"])
}

func TestRestEnquiryHandler_SubmitEnquiry_BadJSON(t *testing.T) {
	mockSvc := new(MockEnquiryService)
	w, _ := doPost(setupEnquiryRouter(mockSvc), "/enquiries", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "SubmitEnquiry")
}

func TestRestEnquiryHandler_SubmitEnquiry_StoreFailure(t *testing.T) {
	mockSvc := new(MockEnquiryService)
	mockSvc.On("SubmitEnquiry", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("insert failed")).Once()

	w, body := doPost(setupEnquiryRouter(mockSvc), "/enquiries", `{"name":"Ann","email":"ann@example.com","message":"Hi"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to submit enquiry", body["error"])
}

func TestRestEnquiryHandler_SubmitSuggestion(t *testing.T) {
	mockSvc := new(MockEnquiryService)
	mockSvc.On("SubmitSuggestion", mock.Anything, mock.Anything, mock.MatchedBy(func(s models.ListingSuggestion) bool {
		return s.PlaceName == "Bayworld"
	})).Return(&models.ListingSuggestion{ID: "s1", PlaceName: "Bayworld", Status: models.SuggestionStatusPending}, nil).Once()

	w, body := doPost(setupEnquiryRouter(mockSvc), "/suggestions", `{"place_name":"Bayworld","name":"Ben","email":"ben@example.com"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pending", body["data"].(map[string]interface{})["status"])
}
