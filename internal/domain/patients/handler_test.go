package patients

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandler() (*echo.Echo, *memRepo) {
	repo := newMemRepo()
	h := NewHandler(NewService(repo))
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, repo
}

func TestHandler_RegisterAndGet(t *testing.T) {
	e, _ := setupHandler()

	body := `{"first_name":"Amina","last_name":"Odhiambo","gender":"female"}`
	req := httptest.NewRequest("POST", "/api/v1/patients", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mrn":"MRN`)
}

func TestHandler_RegisterValidation(t *testing.T) {
	e, _ := setupHandler()

	req := httptest.NewRequest("POST", "/api/v1/patients", strings.NewReader(`{"first_name":"X"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetInvalidID(t *testing.T) {
	e, _ := setupHandler()

	req := httptest.NewRequest("GET", "/api/v1/patients/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_List(t *testing.T) {
	e, repo := setupHandler()
	svc := NewService(repo)
	for _, name := range []string{"Mwangi", "Otieno", "Wanjiku"} {
		require.NoError(t, svc.Register(httptest.NewRequest("GET", "/", nil).Context(),
			&Patient{FirstName: "Test", LastName: name}))
	}

	req := httptest.NewRequest("GET", "/api/v1/patients?limit=2", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":3`)
}
