package controllers

import (
	"net/http"
	"strings"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/api/responses"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/api/validators"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/fees"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/wallets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/pagination"
)

const maxReferenceLen = 140

type depositRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference" validate:"max=140"`
}

type chargeRequest struct {
	AmountCents int64  `json:"amount_cents"`
	DueDate     string `json:"due_date" validate:"required"`
	Note        string `json:"note" validate:"max=140"`
}

type historyDTO struct {
	Items      []transactionDTO `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}


// WalletGet returns a wallet's cached balance.
func WalletGet(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("wallet service"))
			return
		}
		walletID, err := validators.ParseUUIDParam(r, "walletId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		wallet, err := svc.Balance(r.Context(), walletID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toWalletDTO(*wallet))
	}
}

// WalletTransactions pages through the ledger newest first.
func WalletTransactions(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("wallet service"))
			return
		}
		walletID, err := validators.ParseUUIDParam(r, "walletId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.History(r.Context(), walletID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, historyDTO{Items: toTransactionDTOs(page.Items), NextCursor: page.NextCursor})
	}
}

// WalletReconcile compares the cached balance with the ledger sum.
func WalletReconcile(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("wallet service"))
			return
		}
		walletID, err := validators.ParseUUIDParam(r, "walletId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Reconcile(r.Context(), walletID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"wallet_id":    result.WalletID,
			"stored_cents": result.StoredCents,
			"ledger_cents": result.LedgerCents,
			"consistent":   result.Consistent,
			"checked_at":   result.CheckedAtUTC,
		})
	}
}

// WalletDeposit tops up a wallet.
func WalletDeposit(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("wallet service"))
			return
		}
		walletID, err := validators.ParseUUIDParam(r, "walletId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req depositRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		applied, err := svc.Deposit(r.Context(), wallets.DepositInput{
			WalletID:    walletID,
			AmountCents: req.AmountCents,
			Reference:   validators.SanitizeString(req.Reference, maxReferenceLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toAppliedDTO(*applied))
	}
}

// WalletCharge registers an extraordinary charge on a fee wallet.
func WalletCharge(svc FeeService, logg *logger.Logger) http.HandlerFunc {
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
		var req chargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		due, err := validators.ParseDay(req.DueDate, "due_date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		schedule, err := svc.RegisterExtraordinaryCharge(r.Context(), fees.ChargeInput{
			WalletID:    walletID,
			AmountCents: req.AmountCents,
			DueDate:     due,
			Note:        validators.SanitizeString(req.Note, maxReferenceLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toScheduleDTO(*schedule))
	}
}
