package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"venueattend/internal/model"
)

// ExportRow is one attendance record with the names shown in exports.
type ExportRow struct {
	model.Attendance
	MemberCode   string
	MemberName   string
	LocationName string
}

var csvHeader = []string{
	"date", "member_code", "member_name", "location", "check_in", "check_out",
	"status", "method", "confidence", "verified",
}

// WriteCSV writes rows as CSV with times rendered in loc.
func WriteCSV(w io.Writer, rows []ExportRow, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		checkOut := ""
		if r.CheckOut != nil {
			checkOut = r.CheckOut.In(loc).Format(time.DateTime)
		}
		confidence := ""
		if r.Confidence != nil {
			confidence = strconv.FormatFloat(*r.Confidence, 'f', 2, 64)
		}
		rec := []string{
			r.Date.String(),
			r.MemberCode,
			r.MemberName,
			r.LocationName,
			r.CheckIn.In(loc).Format(time.DateTime),
			checkOut,
			string(r.Status),
			string(r.Method),
			confidence,
			strconv.FormatBool(r.VerifiedByAdmin),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
