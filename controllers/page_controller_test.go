// controllers/page_controller_test.go
package controllers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"playjosh/models"
	"playjosh/services"
)

func TestHealth(t *testing.T) {
	router := setupTestRouter(t, models.Anonymous())
	router.GET("/health", Health)

	w := get(router, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestPage_EchoesSessionUser(t *testing.T) {
	current := authenticated("u1", models.Metadata{
		models.MetaOnboardingCompleted: true,
		models.MetaFullName:            "Josh Example",
	})
	router := setupTestRouter(t, current)
	pc := NewPageController(testAppURL, nil)
	router.GET("/Home", pc.Page("home"))
	router.GET("/events/:id", pc.Page("event"))

	w := get(router, "/Home")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"page": "home",
		"authenticated": true,
		"user": {"id": "u1", "email": "u1@example.com", "full_name": "Josh Example", "onboarding_completed": true}
	}`, w.Body.String())

	w = get(router, "/events/42")
	assert.Contains(t, w.Body.String(), `"id":"42"`)
}

func TestPage_Anonymous(t *testing.T) {
	router := setupTestRouter(t, models.Anonymous())
	router.GET("/", NewPageController(testAppURL, nil).Page("landing"))

	w := get(router, "/")

	assert.JSONEq(t, `{"page":"landing","authenticated":false}`, w.Body.String())
}

func TestProfileQRCode(t *testing.T) {
	var encoded string
	encode := func(content string, level qrcode.RecoveryLevel, size int) ([]byte, error) {
		encoded = content
		return []byte("\x89PNG fake"), nil
	}
	router := setupTestRouter(t, authenticated("u1", models.Metadata{models.MetaOnboardingCompleted: true}))
	router.GET("/profile/qrcode", NewPageController(testAppURL, encode).ProfileQRCode)

	w := get(router, "/profile/qrcode")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG fake", w.Body.String())
	assert.Equal(t, testAppURL+"/profile/u1", encoded)
}

func TestProfileQRCode_RealEncoder(t *testing.T) {
	router := setupTestRouter(t, authenticated("u1", models.Metadata{models.MetaOnboardingCompleted: true}))
	router.GET("/profile/qrcode", NewPageController(testAppURL, nil).ProfileQRCode)

	w := get(router, "/profile/qrcode")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "\x89PNG", w.Body.String()[:4])
}

func TestProfileQRCode_EncoderFailure(t *testing.T) {
	encode := func(string, qrcode.RecoveryLevel, int) ([]byte, error) {
		return nil, errors.New("content too long")
	}
	router := setupTestRouter(t, authenticated("u1", models.Metadata{}))
	router.GET("/profile/qrcode", NewPageController(testAppURL, encode).ProfileQRCode)

	w := get(router, "/profile/qrcode")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ------------------ geocode ------------------

type fakeGeocoder struct {
	loc models.Location
	err error
}

func (f fakeGeocoder) Reverse(context.Context, float64, float64) (models.Location, error) {
	return f.loc, f.err
}

func setupGeocodeRouter(t *testing.T, g services.Geocoder) *gin.Engine {
	router := setupTestRouter(t, models.Anonymous())
	router.GET("/api/geocode", NewGeocodeController(g).Reverse)
	return router
}

func TestGeocode(t *testing.T) {
	router := setupGeocodeRouter(t, fakeGeocoder{loc: models.Location{City: "Sydney", State: "New South Wales", Country: "Australia"}})

	w := get(router, "/api/geocode?lat=-33.86&lng=151.2")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"city":"Sydney","state":"New South Wales","country":"Australia"}`, w.Body.String())
}

func TestGeocode_Errors(t *testing.T) {
	cases := []struct {
		name   string
		query  string
		err    error
		status int
	}{
		{"missing lat", "?lng=1", nil, http.StatusBadRequest},
		{"garbage", "?lat=north&lng=1", nil, http.StatusBadRequest},
		{"out of range", "?lat=91&lng=1", nil, http.StatusBadRequest},
		{"nothing found", "?lat=0&lng=0", services.ErrGeocodeNotFound, http.StatusNotFound},
		{"upstream down", "?lat=0&lng=0", services.ErrGeocodeUpstream, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := setupGeocodeRouter(t, fakeGeocoder{err: tc.err})
			w := get(router, "/api/geocode"+tc.query)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
