package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"venueattend/internal/identity"
	"venueattend/internal/model"
)

type locationRequest struct {
	Name            string `json:"name"`
	Address         string `json:"address"`
	LocalGovernment string `json:"local_government"`
	State           string `json:"state"`
	Capacity        *int   `json:"capacity"`
	Description     string `json:"description"`
}

func (r locationRequest) location(id string) *model.Location {
	return &model.Location{
		ID:              id,
		Name:            r.Name,
		Address:         r.Address,
		LocalGovernment: r.LocalGovernment,
		State:           r.State,
		Capacity:        r.Capacity,
		Description:     r.Description,
	}
}

type activeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (s *Server) createLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	l := req.location("")
	if err := s.Locations.Create(c.Request.Context(), l); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (s *Server) listLocations(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	locs, err := s.Locations.List(c.Request.Context(), activeOnly)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": locs})
}

func (s *Server) getLocation(c *gin.Context) {
	l, err := s.Locations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (s *Server) updateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	if err := s.Locations.Update(ctx, req.location(c.Param("id"))); err != nil {
		s.fail(c, err)
		return
	}
	s.getLocation(c)
}

func (s *Server) setLocationActive(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Locations.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		s.fail(c, err)
		return
	}
	s.getLocation(c)
}

func (s *Server) deleteLocation(c *gin.Context) {
	if err := s.Locations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type scheduleRequest struct {
	LocationID        string          `json:"location_id"`
	Date              model.Date      `json:"date"`
	Start             model.TimeOfDay `json:"start_time"`
	End               model.TimeOfDay `json:"end_time"`
	ActivityType      string          `json:"activity_type"`
	Description       string          `json:"description"`
	ExpectedAttendees *int            `json:"expected_attendees"`
}

func (r scheduleRequest) schedule(id string) *model.Schedule {
	return &model.Schedule{
		ID:                id,
		LocationID:        r.LocationID,
		Date:              r.Date,
		Start:             r.Start,
		End:               r.End,
		ActivityType:      r.ActivityType,
		Description:       r.Description,
		ExpectedAttendees: r.ExpectedAttendees,
	}
}

func (s *Server) createSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sched := req.schedule("")
	if err := s.Schedules.Create(c.Request.Context(), sched); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sched)
}

// listSchedules lists schedules for ?date=, defaulting to today.
func (s *Server) listSchedules(c *gin.Context) {
	date, ok := s.dateQuery(c, "date")
	if !ok {
		return
	}
	scheds, err := s.Schedules.ListForDate(c.Request.Context(), date)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "schedules": scheds})
}

func (s *Server) todayLocations(c *gin.Context) {
	today, _ := s.Schedules.Clock(s.Now())
	locs, err := s.Schedules.TodayLocations(c.Request.Context(), today)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": today, "locations": locs})
}

func (s *Server) getSchedule(c *gin.Context) {
	sched, err := s.Schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	today, tod := s.Schedules.Clock(s.Now())
	c.JSON(http.StatusOK, gin.H{"schedule": sched, "state": sched.StateAt(today, tod)})
}

func (s *Server) updateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sched := req.schedule(c.Param("id"))
	if err := s.Schedules.Update(c.Request.Context(), sched); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *Server) cancelSchedule(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	sched, err := s.Schedules.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *Server) activateSchedule(c *gin.Context) {
	sched, err := s.Schedules.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *Server) deleteSchedule(c *gin.Context) {
	if err := s.Schedules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) registerMember(c *gin.Context) {
	var req struct {
		Code     string `json:"code"`
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
		PIN      string `json:"pin"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := s.Identity.Register(c.Request.Context(), identity.Registration{
		Code:     req.Code,
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		PIN:      req.PIN,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) listMembers(c *gin.Context) {
	members, err := s.Identity.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) getMember(c *gin.Context) {
	m, err := s.Identity.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"member":       m,
		"locked":       s.Identity.IsLocked(m, s.Now()),
		"has_template": m.HasTemplate(),
	})
}

func (s *Server) changePIN(c *gin.Context) {
	var req struct {
		PIN string `json:"pin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Identity.ChangePIN(c.Request.Context(), c.Param("id"), req.PIN); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) unlockMember(c *gin.Context) {
	if err := s.Identity.Unlock(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setMemberActive(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Identity.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
