package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/api/responses"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/api/validators"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/allocation"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/queue"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
)

const maxStallNumberLen = 16

type checkInRequest struct {
	StallNumber string `json:"stall_number" validate:"required,max=16"`
	VendorID    string `json:"vendor_id" validate:"required,uuid"`
}

type presenceRequest struct {
	VendorID string `json:"vendor_id" validate:"required,uuid"`
}

type offerDTO struct {
	Outcome string       `json:"outcome"`
	Entry   *queue.Entry `json:"entry,omitempty"`
}

type confirmDTO struct {
	Entry  queue.Entry `json:"entry"`
	Stall  stallDTO    `json:"stall"`
	Charge appliedDTO  `json:"charge"`
}

type checkInDTO struct {
	Stall      stallDTO        `json:"stall"`
	Attendance attendanceDTO   `json:"attendance"`
	Settled    *paymentDTO     `json:"settled,omitempty"`
	Waiver     *transactionDTO `json:"waiver,omitempty"`
}

type releaseDTO struct {
	Stall          stallDTO   `json:"stall"`
	PreviousStatus string     `json:"previous_status"`
	VendorID       *uuid.UUID `json:"vendor_id,omitempty"`
	Changed        bool       `json:"changed"`
}

func sessionKey(r *http.Request) (allocation.SessionKey, error) {
	marketID, err := validators.ParseUUIDParam(r, "marketId")
	if err != nil {
		return allocation.SessionKey{}, err
	}
	day, err := validators.ParseDayParam(r, "date")
	if err != nil {
		return allocation.SessionKey{}, err
	}
	return allocation.SessionKey{MarketID: marketID, Date: day}, nil
}

func stallNumberParam(r *http.Request) (string, error) {
	number := validators.SanitizeStallNumber(chi.URLParam(r, "stallNumber"), maxStallNumberLen)
	if number == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stall number required")
	}
	return number, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable")
}

// MarketStalls lists every stall of a market with its live status.
func MarketStalls(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("market day service"))
			return
		}
		marketID, err := validators.ParseUUIDParam(r, "marketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.StallStatus(r.Context(), marketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toStallDTOs(rows))
	}
}

// MarketQueuePreview ranks present vendors for the date without freezing
// the queue. The date defaults to today in the market time zone.
func MarketQueuePreview(svc MarketDayService, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	if loc == nil {
		loc = time.UTC
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("market day service"))
			return
		}
		marketID, err := validators.ParseUUIDParam(r, "marketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		day, err := validators.ParseQueryDay(r, "date", time.Now().In(loc))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.QueuePreview(r.Context(), marketID, day)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if entries == nil {
			entries = []queue.Entry{}
		}
		responses.WriteSuccess(w, entries)
	}
}

// MarketDayView returns the day's session with its frozen queue.
func MarketDayView(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(svc, logg, http.StatusOK, MarketDayService.Session)
}

// MarketDayStart opens the day and reserves concession stalls.
func MarketDayStart(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(svc, logg, http.StatusCreated, MarketDayService.StartMarketDay)
}

// MarketDaySpunta freezes the ranking and opens the call-up.
func MarketDaySpunta(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(svc, logg, http.StatusOK, MarketDayService.StartSpunta)
}

// MarketDayClose closes the day and lapses open offers.
func MarketDayClose(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(svc, logg, http.StatusOK, MarketDayService.CloseMarketDay)
}

type sessionCommand func(MarketDayService, context.Context, allocation.SessionKey) (*allocation.SessionView, error)

func sessionHandler(svc MarketDayService, logg *logger.Logger, status int, cmd sessionCommand) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("market day service"))
			return
		}
		key, err := sessionKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := cmd(svc, r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, toSessionDTO(view))
	}
}

// MarketDayCheckIn occupies a concessionaire's own stall.
func MarketDayCheckIn(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("market day service"))
			return
		}
		key, err := sessionKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req checkInRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vendorID, err := uuid.Parse(strings.TrimSpace(req.VendorID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor_id"))
			return
		}
		result, err := svc.CheckInConcessionaire(r.Context(), key, validators.SanitizeStallNumber(req.StallNumber, maxStallNumberLen), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := checkInDTO{
			Stall:      toStallDTO(result.Stall),
			Attendance: toAttendanceDTO(result.Attendance),
			Settled:    toPaymentDTO(result.Settled),
		}
		if result.Waiver != nil {
			waiver := toTransactionDTO(*result.Waiver)
			out.Waiver = &waiver
		}
		responses.WriteSuccess(w, out)
	}
}

// MarketDayPresence records an itinerant vendor's arrival.
func MarketDayPresence(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("market day service"))
			return
		}
		key, err := sessionKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req presenceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vendorID, err := uuid.Parse(strings.TrimSpace(req.VendorID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor_id"))
			return
		}
		record, err := svc.RegisterPresence(r.Context(), key, vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toAttendanceDTO(*record))
	}
}

// MarketDayOfferNext offers the first free stall to the next eligible vendor.
func MarketDayOfferNext(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("market day service"))
			return
		}
		key, err := sessionKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.OfferNext(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offerDTO{Outcome: string(result.Outcome), Entry: result.Entry})
	}
}

// MarketDayConfirm binds the offered stall and charges the vendor's wallet.
func MarketDayConfirm(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("market day service"))
			return
		}
		key, err := sessionKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ConfirmOffer(r.Context(), key, vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmDTO{
			Entry:  result.Entry,
			Stall:  toStallDTO(result.Stall),
			Charge: toAppliedDTO(result.Charge),
		})
	}
}

// MarketDayDecline frees the offered stall and marks the vendor renounced.
func MarketDayDecline(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("market day service"))
			return
		}
		key, err := sessionKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.DeclineOffer(r.Context(), key, vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

// MarketDayRelease frees a stall. Releasing a free stall succeeds unchanged.
func MarketDayRelease(svc MarketDayService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("market day service"))
			return
		}
		key, err := sessionKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		number, err := stallNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ReleaseStall(r.Context(), key, number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, releaseDTO{
			Stall:          toStallDTO(result.Stall),
			PreviousStatus: string(result.PreviousStatus),
			VendorID:       result.VendorID,
			Changed:        result.Changed,
		})
	}
}
