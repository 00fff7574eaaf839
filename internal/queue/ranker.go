package queue

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
)

// Candidate is one present itinerant vendor with its seniority as of the
// ranked day. Err marks a candidate whose history could not be resolved.
type Candidate struct {
	VendorID              uuid.UUID
	TotalPriorAttendances int
	FirstAttendanceDate   *time.Time
	Err                   error
}

// Entry is one ranked row of the graduatoria.
type Entry struct {
	Position              int                    `json:"position"`
	VendorID              uuid.UUID              `json:"vendor_id"`
	TotalPriorAttendances int                    `json:"total_prior_attendances"`
	FirstAttendanceDate   *time.Time             `json:"first_attendance_date,omitempty"`
	Status                enums.QueueEntryStatus `json:"status"`
	StallNumber           *string                `json:"stall_number,omitempty"`
	ErrorCode             string                 `json:"error_code,omitempty"`
	Err                   error                  `json:"-"`
}

// Eligible reports whether the entry can be called up.
func (e Entry) Eligible() bool {
	return e.ErrorCode == "" && e.Err == nil
}

// Rank orders candidates by attendances desc, first attendance asc (no
// history last) and vendor id asc. Candidates carrying an error are appended
// after every valid one. The input slice is not modified.
func Rank(candidates []Candidate) []Entry {
	valid := make([]Candidate, 0, len(candidates))
	var failed []Candidate
	for _, c := range candidates {
		if c.Err != nil {
			failed = append(failed, c)
			continue
		}
		valid = append(valid, c)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return less(valid[i], valid[j])
	})
	sort.SliceStable(failed, func(i, j int) bool {
		return failed[i].VendorID.String() < failed[j].VendorID.String()
	})

	entries := make([]Entry, 0, len(candidates))
	for _, c := range valid {
		entries = append(entries, Entry{
			Position:              len(entries) + 1,
			VendorID:              c.VendorID,
			TotalPriorAttendances: c.TotalPriorAttendances,
			FirstAttendanceDate:   c.FirstAttendanceDate,
			Status:                enums.QueueEntryWaiting,
		})
	}
	for _, c := range failed {
		entries = append(entries, Entry{
			Position:              len(entries) + 1,
			VendorID:              c.VendorID,
			TotalPriorAttendances: c.TotalPriorAttendances,
			FirstAttendanceDate:   c.FirstAttendanceDate,
			Status:                enums.QueueEntryWaiting,
			ErrorCode:             errorCode(c.Err),
			Err:                   c.Err,
		})
	}
	return entries
}

func less(a, b Candidate) bool {
	if a.TotalPriorAttendances != b.TotalPriorAttendances {
		return a.TotalPriorAttendances > b.TotalPriorAttendances
	}
	switch {
	case a.FirstAttendanceDate != nil && b.FirstAttendanceDate == nil:
		return true
	case a.FirstAttendanceDate == nil && b.FirstAttendanceDate != nil:
		return false
	case a.FirstAttendanceDate != nil && b.FirstAttendanceDate != nil:
		if !a.FirstAttendanceDate.Equal(*b.FirstAttendanceDate) {
			return a.FirstAttendanceDate.Before(*b.FirstAttendanceDate)
		}
	}
	return a.VendorID.String() < b.VendorID.String()
}

func errorCode(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
