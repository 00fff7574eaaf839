package controllers

import (
	"net/http"
	"strings"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/api/responses"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/api/validators"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/attendance"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
)

const maxCorrectionNoteLen = 280

type correctionRequest struct {
	Outcome     *string `json:"outcome"`
	StallNumber *string `json:"stall_number" validate:"omitempty,max=16"`
	Note        string  `json:"note" validate:"required,max=280"`
}

// AttendanceCorrect overwrites an attendance record's outcome or stall.
func AttendanceCorrect(svc AttendanceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("attendance service"))
			return
		}
		recordID, err := validators.ParseUUIDParam(r, "attendanceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req correctionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := attendance.CorrectionInput{
			RecordID: recordID,
			Note:     validators.SanitizeString(req.Note, maxCorrectionNoteLen),
		}
		if req.StallNumber != nil {
			number := validators.SanitizeStallNumber(*req.StallNumber, maxStallNumberLen)
			input.StallNumber = &number
		}
		if req.Outcome != nil {
			outcome, err := enums.ParseAttendanceOutcome(strings.TrimSpace(*req.Outcome))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outcome"))
				return
			}
			input.Outcome = &outcome
		}
		record, err := svc.CorrectAttendance(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toAttendanceDTO(*record))
	}
}
