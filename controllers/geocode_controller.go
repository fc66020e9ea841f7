// Package controllers file: controllers/geocode_controller.go
package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"playjosh/logger"
	"playjosh/services"
)

// GeocodeController proxies reverse geocoding for the location picker.
type GeocodeController struct {
	geocoder services.Geocoder
}

// NewGeocodeController creates a GeocodeController.
func NewGeocodeController(geocoder services.Geocoder) *GeocodeController {
	return &GeocodeController{geocoder: geocoder}
}

// Reverse resolves ?lat=&lng= to a city, state and country.
func (gc *GeocodeController) Reverse(c *gin.Context) {
	lat, lng, err := services.ParseCoordinates(c.Query("lat"), c.Query("lng"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Latitude and longitude are required"})
		return
	}

	loc, err := gc.geocoder.Reverse(c.Request.Context(), lat, lng)
	switch {
	case errors.Is(err, services.ErrGeocodeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No results found"})
	case err != nil:
		logger.Ctx(c.Request.Context()).Error().Err(err).Float64("lat", lat).Float64("lng", lng).Msg("Reverse: geocoding failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch location data"})
	default:
		c.JSON(http.StatusOK, loc)
	}
}
