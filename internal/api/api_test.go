package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/andes-labs/sunat-service/internal/models"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	router := gin.New()
	(&API{logger: logger}).RegisterRoutes(router)
	return router
}

func TestProtectedRoutesRequireAPIKey(t *testing.T) {
	router := testRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/branches"},
		{http.MethodGet, "/v1/branches"},
		{http.MethodPost, "/v1/companies/" + uuid.NewString() + "/api-keys"},
		{http.MethodDelete, "/v1/api-keys/" + uuid.NewString()},
		{http.MethodPost, "/v1/documents"},
		{http.MethodGet, "/v1/compliance/payment-means"},
	}

	for _, route := range routes {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(route.method, route.path, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestStatusForCode(t *testing.T) {
	cases := map[string]int{
		string(models.ErrorCodeInvalidRequest): http.StatusBadRequest,
		string(models.ErrorCodeUnauthorized):   http.StatusUnauthorized,
		string(models.ErrorCodeForbidden):      http.StatusForbidden,
		string(models.ErrorCodeNotFound):       http.StatusNotFound,
		string(models.ErrorCodeConflict):       http.StatusConflict,
		string(models.ErrorCodeRejected):       http.StatusUnprocessableEntity,
		string(models.ErrorCodeInternal):       http.StatusInternalServerError,
	}

	for code, want := range cases {
		assert.Equal(t, want, statusForCode(code), code)
	}
}
