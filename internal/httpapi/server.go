package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"venueattend/internal/attendance"
	"venueattend/internal/auth"
	"venueattend/internal/cloudinary"
	"venueattend/internal/faceclient"
	"venueattend/internal/identity"
	"venueattend/internal/ledger"
	"venueattend/internal/location"
	"venueattend/internal/schedule"
)

// Recognizer confirms that a captured face belongs to a member.
// Satisfied by *faceclient.Provider.
type Recognizer interface {
	Recognize(ctx context.Context, memberID, imageURL string) (faceclient.Match, error)
}

// Enroller registers a member's reference photo with the face service.
// Satisfied by *faceclient.Client.
type Enroller interface {
	Enroll(ctx context.Context, memberID, imageURL, name string) (*faceclient.EnrollResult, error)
}

// PhotoStore keeps enrollment photos. Satisfied by *cloudinary.Client.
type PhotoStore interface {
	UploadDataURL(ctx context.Context, publicID, data string) (*cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, publicID, filename string, data []byte) (*cloudinary.UploadResult, error)
}

// GalleryRefresher reloads the recognition gallery. Satisfied by *faceclient.Gallery.
type GalleryRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the collaborators the API routes to. Recognizer, Enroller,
// Photos and Gallery are optional.
type Deps struct {
	Engine     *attendance.Engine
	Identity   *identity.Service
	Locations  *location.Service
	Schedules  *schedule.Registry
	Ledger     *ledger.Ledger
	Issuer     *auth.Issuer
	Recognizer Recognizer
	Enroller   Enroller
	Photos     PhotoStore
	Gallery    GalleryRefresher

	AdminAPIKey string
	// Zone renders times in exports.
	Zone   *time.Location
	Health map[string]HealthCheck
	Logger *slog.Logger
	Now    func() time.Time
}

// Server owns the HTTP handlers.
type Server struct {
	Deps
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Zone == nil {
		d.Zone = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Server{Deps: d}
}

// Register mounts every route on r. Middlewares that apply to the whole
// router are the caller's concern.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.POST("/auth/admin-token", s.adminToken)
	v1.POST("/auth/refresh", s.refreshToken)

	kiosk := v1.Group("", auth.RequireRole(s.Issuer, auth.RoleKiosk, auth.RoleAdmin))
	kiosk.POST("/checkins", s.checkIn)
	kiosk.POST("/attendance/:id/checkout", s.checkOut)
	kiosk.GET("/locations/:id/open", s.openSchedule)

	admin := v1.Group("", auth.RequireRole(s.Issuer, auth.RoleAdmin))
	admin.POST("/devices/register", s.registerDevice)

	admin.POST("/attendance/mark-by-schedule", s.markBySchedule)
	admin.GET("/attendance", s.listAttendance)
	admin.GET("/attendance/export", s.exportAttendance)
	admin.POST("/attendance/:id/verify", s.verifyAttendance)

	admin.POST("/locations", s.createLocation)
	admin.GET("/locations", s.listLocations)
	admin.GET("/locations/:id", s.getLocation)
	admin.PUT("/locations/:id", s.updateLocation)
	admin.POST("/locations/:id/active", s.setLocationActive)
	admin.DELETE("/locations/:id", s.deleteLocation)
	admin.GET("/locations/:id/summary", s.locationSummary)

	admin.POST("/schedules", s.createSchedule)
	admin.GET("/schedules", s.listSchedules)
	admin.GET("/schedules/today/locations", s.todayLocations)
	admin.GET("/schedules/:id", s.getSchedule)
	admin.PUT("/schedules/:id", s.updateSchedule)
	admin.POST("/schedules/:id/cancel", s.cancelSchedule)
	admin.POST("/schedules/:id/activate", s.activateSchedule)
	admin.DELETE("/schedules/:id", s.deleteSchedule)

	admin.POST("/members", s.registerMember)
	admin.GET("/members", s.listMembers)
	admin.GET("/members/:id", s.getMember)
	admin.PUT("/members/:id/pin", s.changePIN)
	admin.POST("/members/:id/unlock", s.unlockMember)
	admin.POST("/members/:id/active", s.setMemberActive)
	admin.PUT("/members/:id/template", s.setTemplate)
	admin.POST("/members/:id/photo", s.enrollPhoto)
	admin.GET("/members/:id/history", s.memberHistory)
	admin.GET("/members/:id/summary", s.memberSummary)
	admin.POST("/gallery/refresh", s.refreshGallery)
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) adminToken(c *gin.Context) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	_ = c.ShouldBindJSON(&req)
	key := req.APIKey
	if key == "" {
		key = c.GetHeader("X-API-Key")
	}
	if !auth.ValidAPIKey(s.AdminAPIKey, key) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	tokens, err := s.Issuer.Issue("admin", auth.RoleAdmin, "")
	if err != nil {
		s.internal(c, "issue admin token", err)
		return
	}
	c.JSON(http.StatusCreated, tokens)
}

func (s *Server) refreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := s.Issuer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// registerDevice issues kiosk tokens bound to one location.
func (s *Server) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID   string `json:"device_id" binding:"required"`
		LocationID string `json:"location_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.Locations.Get(c.Request.Context(), req.LocationID); err != nil {
		s.fail(c, err)
		return
	}
	tokens, err := s.Issuer.Issue(req.DeviceID, auth.RoleKiosk, req.LocationID)
	if err != nil {
		s.internal(c, "issue kiosk token", err)
		return
	}
	s.Logger.InfoContext(c.Request.Context(), "kiosk registered", "device_id", req.DeviceID, "location_id", req.LocationID)
	c.JSON(http.StatusCreated, tokens)
}
