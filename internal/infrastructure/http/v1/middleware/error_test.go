package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"magazzino/internal/core/apperror"
)

func TestReplayableFailure(t *testing.T) {
	tests := []struct {
		name string
		err  *apperror.AppError
		want bool
	}{
		{"validation is terminal", apperror.NewValidation("bad input"), true},
		{"insufficient stock is terminal", apperror.NewInsufficientStock("p", "5", "2"), true},
		{"busy must re-execute on retry", apperror.NewBusy("contention, resubmit"), false},
		{"internal must re-execute on retry", apperror.NewInternal(nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := replayableFailure(tt.err.HTTPStatus); got != tt.want {
				t.Errorf("replayableFailure(%d) = %v, want %v", tt.err.HTTPStatus, got, tt.want)
			}
		})
	}
}

func TestErrorHandler_MapsAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandler())
	router.POST("/movements", func(c *gin.Context) {
		_ = c.Error(apperror.NewBusy("ledger contention, resubmit the request"))
		c.Abort()
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/movements", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Code != apperror.CodeBusy {
		t.Errorf("code = %q, want %q", body.Code, apperror.CodeBusy)
	}
	if body.Message == "" {
		t.Error("message is empty")
	}
}

func TestErrorHandler_HidesUnknownErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(assertableError("sql: connection reset"))
		c.Abort()
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Code != apperror.CodeInternal {
		t.Errorf("code = %q, want %q", body.Code, apperror.CodeInternal)
	}
	if body.Message != "Internal server error" {
		t.Errorf("message leaks internals: %q", body.Message)
	}
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
