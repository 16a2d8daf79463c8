package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"venueattend/internal/attendance"
	"venueattend/internal/auth"
	"venueattend/internal/model"
)

type checkInRequest struct {
	Identity    string                  `json:"identity"`
	PIN         string                  `json:"pin"`
	LocationID  string                  `json:"location_id"`
	Method      model.Method            `json:"method"`
	ImageURL    string                  `json:"image_url"`
	Recognition *attendance.Recognition `json:"recognition"`
	Notes       string                  `json:"notes"`
}

// checkIn runs the kiosk check-in. A kiosk token bound to a location may only
// check in there. When the method needs a face match and the kiosk sent an
// image instead of a verdict, the configured recognizer supplies one.
func (s *Server) checkIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if claims, ok := auth.ClaimsFrom(c); ok && claims.Role == auth.RoleKiosk && claims.LocationID != "" {
		if req.LocationID == "" {
			req.LocationID = claims.LocationID
		} else if req.LocationID != claims.LocationID {
			c.JSON(http.StatusForbidden, gin.H{"error": "device is registered to another location"})
			return
		}
	}
	if req.Method == "" {
		req.Method = model.MethodFacePIN
	}
	if req.Method.RequiresRecognition() && req.Recognition == nil && req.ImageURL != "" {
		req.Recognition = s.recognize(c, req.Identity, req.ImageURL)
	}

	out := s.Engine.Mark(c.Request.Context(), attendance.MarkRequest{
		Identity:    req.Identity,
		PIN:         req.PIN,
		LocationID:  req.LocationID,
		Method:      req.Method,
		Recognition: req.Recognition,
		Notes:       req.Notes,
	})
	writeOutcome(c, out)
}

// recognize asks the recognizer about the claimed member. Any failure yields
// no verdict and the engine reports a mismatch.
func (s *Server) recognize(c *gin.Context, code, imageURL string) *attendance.Recognition {
	if s.Recognizer == nil || strings.TrimSpace(code) == "" {
		return nil
	}
	ctx := c.Request.Context()
	m, err := s.Identity.FindActive(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil
	}
	match, err := s.Recognizer.Recognize(ctx, m.ID, imageURL)
	if err != nil {
		s.Logger.WarnContext(ctx, "recognition failed", "member_id", m.ID, "error", err)
		return nil
	}
	return &attendance.Recognition{MemberID: match.MemberID, Confidence: match.Confidence}
}

func (s *Server) markBySchedule(c *gin.Context) {
	var req struct {
		MemberID   string       `json:"member_id"`
		ScheduleID string       `json:"schedule_id"`
		Method     model.Method `json:"method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	writeOutcome(c, s.Engine.MarkBySchedule(c.Request.Context(), req.MemberID, req.ScheduleID, req.Method))
}

func (s *Server) checkOut(c *gin.Context) {
	ctx := c.Request.Context()
	rec, err := s.Ledger.Get(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if claims, ok := auth.ClaimsFrom(c); ok && claims.Role == auth.RoleKiosk &&
		claims.LocationID != "" && claims.LocationID != rec.LocationID {
		c.JSON(http.StatusForbidden, gin.H{"error": "device is registered to another location"})
		return
	}
	rec, err = s.Ledger.CheckOut(ctx, rec.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// openSchedule tells a kiosk whether its location is taking check-ins now.
func (s *Server) openSchedule(c *gin.Context) {
	ctx := c.Request.Context()
	sched, open, err := s.Schedules.Lookup(ctx, c.Param("id"), s.Now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"open": open, "schedule": sched})
}
