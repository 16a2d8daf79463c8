package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"venueattend/internal/attendance"
	"venueattend/internal/identity"
	"venueattend/internal/ledger"
	"venueattend/internal/location"
	"venueattend/internal/model"
	"venueattend/internal/schedule"
)

// fail maps store and service errors onto HTTP responses.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, location.ErrInvalidLocation),
		errors.Is(err, schedule.ErrInvalidSchedule),
		errors.Is(err, identity.ErrInvalidMember),
		errors.Is(err, identity.ErrMalformedPIN),
		errors.Is(err, ledger.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, location.ErrLocationInUse),
		errors.Is(err, schedule.ErrScheduleReferenced),
		errors.Is(err, ledger.ErrAlreadyCheckedOut),
		errors.Is(err, model.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.internal(c, c.FullPath(), err)
	}
}

func (s *Server) internal(c *gin.Context, op string, err error) {
	s.Logger.ErrorContext(c.Request.Context(), "request failed", "op", op, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// outcomeStatus is the HTTP status for a check-in outcome.
func outcomeStatus(code attendance.Code) int {
	switch code {
	case attendance.CodeSuccess:
		return http.StatusCreated
	case attendance.CodeInvalidRequest:
		return http.StatusBadRequest
	case attendance.CodeIdentityError:
		return http.StatusUnauthorized
	case attendance.CodeAccountLocked:
		return http.StatusLocked
	case attendance.CodeRecognitionMismatch:
		return http.StatusForbidden
	case attendance.CodeNoScheduleToday, attendance.CodeOutsideScheduleWindow, attendance.CodeAlreadyMarked:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeOutcome renders successes as the outcome itself and rejections as
// {"error", "code"} plus the lock or prior check-in time when known.
func writeOutcome(c *gin.Context, out attendance.Outcome) {
	status := outcomeStatus(out.Code)
	if out.OK() {
		c.JSON(status, out)
		return
	}
	body := gin.H{"error": out.Message, "code": out.Code}
	if out.LockedUntil != nil {
		body["locked_until"] = out.LockedUntil
	}
	if out.CheckIn != nil {
		body["check_in_time"] = out.CheckIn
	}
	c.JSON(status, body)
}
