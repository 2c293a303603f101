package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chuanlbx-ui/zhongdao-core/api/responses"
	"github.com/chuanlbx-ui/zhongdao-core/api/validators"
	"github.com/chuanlbx-ui/zhongdao-core/internal/ledger"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/enums"
	pkgerrors "github.com/chuanlbx-ui/zhongdao-core/pkg/errors"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/logger"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/pagination"
)

type postEntryRequest struct {
	MemberID string          `json:"member_id" validate:"required,uuid"`
	Delta    string          `json:"delta" validate:"required"`
	Reason   string          `json:"reason" validate:"required"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type transferRequest struct {
	FromID   string          `json:"from_id" validate:"required,uuid"`
	ToID     string          `json:"to_id" validate:"required,uuid"`
	Amount   string          `json:"amount" validate:"required"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func LedgerPost(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req postEntryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		memberID, err := uuid.Parse(req.MemberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid member id"))
			return
		}
		delta, err := decimal.NewFromString(req.Delta)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid delta").
				WithDetails(map[string]any{"delta": req.Delta}))
			return
		}
		reason, err := enums.ParseLedgerReason(req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason"))
			return
		}

		entry, err := svc.Post(r.Context(), ledger.PostInput{
			MemberID: memberID,
			Delta:    delta,
			Reason:   reason,
			Metadata: req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

func LedgerTransfer(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fromID, err := uuid.Parse(req.FromID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid sender id"))
			return
		}
		toID, err := uuid.Parse(req.ToID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid recipient id"))
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid amount").
				WithDetails(map[string]any{"amount": req.Amount}))
			return
		}

		result, err := svc.Transfer(r.Context(), ledger.TransferInput{
			FromID:   fromID,
			ToID:     toID,
			Amount:   amount,
			Metadata: req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func LedgerHistory(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := parseMemberID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.History(r.Context(), memberID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func LedgerReplay(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := parseMemberID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Replay(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func LedgerReconcile(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := parseMemberID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Reconcile(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
