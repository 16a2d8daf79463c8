package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"venueattend/internal/ledger"
	"venueattend/internal/model"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// dateQuery reads a YYYY-MM-DD query parameter, defaulting to today. It
// writes a 400 and returns false when the value is malformed.
func (s *Server) dateQuery(c *gin.Context, key string) (model.Date, bool) {
	v := c.Query(key)
	if v == "" {
		today, _ := s.Schedules.Clock(s.Now())
		return today, true
	}
	d, err := model.ParseDate(v)
	if err != nil {
		badRequest(c, err.Error())
		return model.Date{}, false
	}
	return d, true
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func (s *Server) filterFromQuery(c *gin.Context) (ledger.Filter, error) {
	f := ledger.Filter{
		MemberID:   c.Query("member_id"),
		LocationID: c.Query("location_id"),
		Status:     model.Status(c.Query("status")),
		Method:     model.Method(c.Query("method")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("unknown status %q", f.Status)
	}
	if f.Method != "" && !f.Method.Valid() {
		return f, fmt.Errorf("unknown method %q", f.Method)
	}
	var err error
	for key, dst := range map[string]*model.Date{"from": &f.From, "to": &f.To} {
		if v := c.Query(key); v != "" {
			if *dst, err = model.ParseDate(v); err != nil {
				return f, err
			}
		}
	}
	if f.Limit, err = intQuery(c, "limit", defaultPageSize); err != nil {
		return f, err
	}
	if f.Offset, err = intQuery(c, "offset", 0); err != nil {
		return f, err
	}
	if f.Limit == 0 {
		f.Limit = defaultPageSize
	}
	f.Limit = min(f.Limit, maxPageSize)
	return f, nil
}

func (s *Server) listAttendance(c *gin.Context) {
	f, err := s.filterFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	recs, err := s.Ledger.Query(ctx, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	total, err := s.Ledger.Count(ctx, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "total": total, "limit": f.Limit, "offset": f.Offset})
}

// exportAttendance streams one day's attendance as CSV, optionally for one location.
func (s *Server) exportAttendance(c *gin.Context) {
	date, ok := s.dateQuery(c, "date")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	recs, err := s.Ledger.Query(ctx, ledger.Filter{LocationID: c.Query("location_id"), From: date, To: date})
	if err != nil {
		s.fail(c, err)
		return
	}

	members := make(map[string]*model.Member)
	locations := make(map[string]*model.Location)
	rows := make([]ledger.ExportRow, 0, len(recs))
	for _, rec := range recs {
		row := ledger.ExportRow{Attendance: rec}
		m, ok := members[rec.MemberID]
		if !ok {
			if m, err = s.Identity.Get(ctx, rec.MemberID); err != nil && !errors.Is(err, model.ErrNotFound) {
				s.fail(c, err)
				return
			}
			members[rec.MemberID] = m
		}
		if m != nil {
			row.MemberCode, row.MemberName = m.Code, m.FullName
		}
		l, ok := locations[rec.LocationID]
		if !ok {
			if l, err = s.Locations.Get(ctx, rec.LocationID); err != nil && !errors.Is(err, model.ErrNotFound) {
				s.fail(c, err)
				return
			}
			locations[rec.LocationID] = l
		}
		if l != nil {
			row.LocationName = l.Name
		}
		rows = append(rows, row)
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance-%s.csv"`, date))
	c.Status(http.StatusOK)
	if err := ledger.WriteCSV(c.Writer, rows, s.Zone); err != nil {
		s.Logger.ErrorContext(ctx, "csv export failed", "date", date.String(), "error", err)
	}
}

func (s *Server) verifyAttendance(c *gin.Context) {
	var req struct {
		Verified   *bool  `json:"verified" binding:"required"`
		AdminNotes string `json:"admin_notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.Ledger.Annotate(c.Request.Context(), c.Param("id"), *req.Verified, req.AdminNotes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) locationSummary(c *gin.Context) {
	date, ok := s.dateQuery(c, "date")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	loc, err := s.Locations.Get(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	active, err := s.Identity.CountActive(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	sum, err := s.Ledger.LocationSummary(ctx, loc, date, active)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"location": loc, "summary": sum})
}

func (s *Server) memberHistory(c *gin.Context) {
	days, err := intQuery(c, "days", 30)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	m, err := s.Identity.Get(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	today, _ := s.Schedules.Clock(s.Now())
	recs, err := s.Ledger.History(ctx, m.ID, today, days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member_id": m.ID, "records": recs})
}

// memberSummary defaults to the 30 days ending today.
func (s *Server) memberSummary(c *gin.Context) {
	today, _ := s.Schedules.Clock(s.Now())
	from, to := today.AddDays(-30), today
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = model.ParseDate(v); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = model.ParseDate(v); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	ctx := c.Request.Context()
	m, err := s.Identity.Get(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	sum, err := s.Ledger.MemberSummary(ctx, m.ID, from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
