// Package controllers file: controllers/page_controller.go
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"playjosh/logger"
	"playjosh/middleware"
	"playjosh/models"
	"playjosh/services"
)

const qrCodeSize = 300

// PageController serves the application page shells.
type PageController struct {
	applicationURL string
	encode         services.QRCodeEncoder
}

// NewPageController creates a PageController. A nil encoder uses go-qrcode.
func NewPageController(applicationURL string, encode services.QRCodeEncoder) *PageController {
	if encode == nil {
		encode = qrcode.Encode
	}
	return &PageController{applicationURL: applicationURL, encode: encode}
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Page returns a handler rendering the named page shell for the current user.
func (pc *PageController) Page(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := middleware.CurrentSession(c)
		data := gin.H{
			"page":          name,
			"authenticated": current.Authenticated,
		}
		if current.Authenticated {
			data["user"] = gin.H{
				"id":                   current.User.ID,
				"email":                current.User.Email,
				"full_name":            current.User.UserMetadata.String(models.MetaFullName),
				"onboarding_completed": current.OnboardingDone(),
			}
		}
		if id := c.Param("id"); id != "" {
			data["id"] = id
		}
		c.JSON(http.StatusOK, data)
	}
}

// ProfileQRCode renders a PNG QR code linking to the current user's profile.
func (pc *PageController) ProfileQRCode(c *gin.Context) {
	current := middleware.CurrentSession(c)
	content := services.ProfileURL(pc.applicationURL, current.User.ID)

	qrBytes, err := services.GenerateQRCode(content, qrCodeSize, pc.encode)
	if err != nil {
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("ProfileQRCode: error generating QR code")
		c.String(http.StatusInternalServerError, "QR generation failed")
		return
	}

	c.Header("Content-Disposition", "inline; filename=\"profile-qrcode.png\"")
	c.Data(http.StatusOK, "image/png", qrBytes)
}
