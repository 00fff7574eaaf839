package controllers

import (
	"net/http"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/api/responses"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/api/validators"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/fees"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
)

// Amounts are range-checked by the fee service so its typed codes reach
// the client unchanged.
type generateFeeRequest struct {
	Year         int    `json:"year" validate:"required,min=2000,max=2100"`
	Installments int    `json:"installments"`
	FirstDueDate string `json:"first_due_date" validate:"required"`
}

type payInstallmentRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type generateDTO struct {
	MarketID   string        `json:"market_id"`
	Year       int           `json:"year"`
	Wallets    int           `json:"wallets"`
	TotalCents int64         `json:"total_cents"`
	Schedules  []scheduleDTO `json:"schedules"`
}

// FeeGenerate splits the annual canone of every concession in the market.
func FeeGenerate(svc FeeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("fee service"))
			return
		}
		marketID, err := validators.ParseUUIDParam(r, "marketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req generateFeeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		firstDue, err := validators.ParseDay(req.FirstDueDate, "first_due_date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.GenerateAnnualFee(r.Context(), fees.GenerateInput{
			MarketID:     marketID,
			Year:         req.Year,
			Installments: req.Installments,
			FirstDueDate: firstDue,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		schedules := make([]scheduleDTO, 0, len(result.Schedules))
		for _, s := range result.Schedules {
			schedules = append(schedules, toScheduleDTO(s))
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, generateDTO{
			MarketID:   result.MarketID.String(),
			Year:       result.Year,
			Wallets:    result.Wallets,
			TotalCents: result.TotalCents,
			Schedules:  schedules,
		})
	}
}

// WalletFees lists a wallet's schedules with mora as of today. year=0 lists
// every year.
func WalletFees(svc FeeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("fee service"))
			return
		}
		walletID, err := validators.ParseUUIDParam(r, "walletId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		year, err := validators.ParseQueryInt(r, "year", 0, 0, 2100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Schedules(r.Context(), walletID, year)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toScheduleViewDTOs(rows))
	}
}

// FeePay settles one schedule. The amount must cover base plus mora.
func FeePay(svc FeeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("fee service"))
			return
		}
		scheduleID, err := validators.ParseUUIDParam(r, "scheduleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req payInstallmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.PayInstallment(r.Context(), fees.PayInput{ScheduleID: scheduleID, AmountCents: req.AmountCents})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentDTO(result))
	}
}
