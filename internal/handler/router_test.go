package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

type staticTokens map[string]*models.JWTClaims

func (s staticTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Handlers{
		Allocation: NewAllocationHandler(&allocationServiceMock{}),
		Enrollment: NewEnrollmentHandler(&enrollmentServiceMock{}),
		Grade:      NewGradeHandler(&gradeServiceMock{}),
		Catalog:    NewCatalogHandler(&catalogServiceMock{}),
	}.Register(r.Group("/api/v1"), staticTokens{
		"admin":   adminClaims,
		"student": studentClaims,
		"faculty": facultyClaims,
	})
	return r
}

func TestRouterAccessControl(t *testing.T) {
	router := newTestRouter()

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
	}{
		{"missing token", http.MethodGet, "/api/v1/degrees", "", "", http.StatusUnauthorized},
		{"unknown token", http.MethodGet, "/api/v1/degrees", "bogus", "", http.StatusUnauthorized},
		{"catalog open to students", http.MethodGet, "/api/v1/degrees", "student", "", http.StatusOK},
		{"student cannot allocate", http.MethodPost, "/api/v1/allocations", "student", `{"course_id":"CS301","faculty_id":"F1"}`, http.StatusForbidden},
		{"faculty cannot enroll", http.MethodPost, "/api/v1/enrollments", "faculty", `{"selections":[]}`, http.StatusForbidden},
		{"student reads own enrollments", http.MethodGet, "/api/v1/students/S1/enrollments", "student", "", http.StatusOK},
		{"student cannot read others", http.MethodGet, "/api/v1/students/S2/backlogs", "student", "", http.StatusForbidden},
		{"faculty reads own load", http.MethodGet, "/api/v1/faculty/F1/load", "faculty", "", http.StatusOK},
		{"faculty cannot read others load", http.MethodGet, "/api/v1/faculty/F2/backlogs", "faculty", "", http.StatusForbidden},
		{"student cannot read roster", http.MethodGet, "/api/v1/sections/CS301/F1/roster", "student", "", http.StatusForbidden},
		{"student cannot grade", http.MethodPost, "/api/v1/enrollments/e-1/grade", "student", `{"grade":4}`, http.StatusForbidden},
		{"admin sees utilisation", http.MethodGet, "/api/v1/allocations/utilisation", "admin", "", http.StatusOK},
		{"course list open to students", http.MethodGet, "/api/v1/courses", "student", "", http.StatusOK},
		{"student cannot read degree completions", http.MethodGet, "/api/v1/degrees/BTECH-CSE/completions", "student", "", http.StatusForbidden},
		{"admin reads degree completions", http.MethodGet, "/api/v1/degrees/BTECH-CSE/completions", "admin", "", http.StatusOK},
		{"student cannot change limits", http.MethodPatch, "/api/v1/courses/CS301/limits", "student", `{"credits":3}`, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

type pingStub struct{ err error }

func (p pingStub) Ping(ctx context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)

	healthy := NewMetricsHandler(nil, map[string]Pinger{"database": pingStub{}, "redis": nil}, nil)
	c, w := newTestContext(http.MethodGet, "/ready", "", nil)
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"database":"up"}}`, w.Body.String())

	degraded := NewMetricsHandler(nil, map[string]Pinger{"database": pingStub{err: errors.New("refused")}}, nil)
	c, w = newTestContext(http.MethodGet, "/ready", "", nil)
	degraded.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"database":"down"}}`, w.Body.String())
}

func TestMetricsHandlerPrometheusWithoutService(t *testing.T) {
	handler := NewMetricsHandler(nil, nil, nil)
	c, w := newTestContext(http.MethodGet, "/metrics", "", nil)
	handler.Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
