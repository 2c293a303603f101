package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chuanlbx-ui/zhongdao-core/api/responses"
	"github.com/chuanlbx-ui/zhongdao-core/api/validators"
	"github.com/chuanlbx-ui/zhongdao-core/internal/aggregation"
	pkgerrors "github.com/chuanlbx-ui/zhongdao-core/pkg/errors"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/logger"
)

type recordSaleRequest struct {
	EventKey string `json:"event_key" validate:"required,min=1,max=128"`
	MemberID string `json:"member_id" validate:"required,uuid"`
	Amount   string `json:"amount" validate:"required"`
	NewBuyer bool   `json:"new_buyer"`
}

func SaleRecord(svc aggregation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordSaleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		memberID, err := uuid.Parse(req.MemberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid member id"))
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid amount").
				WithDetails(map[string]any{"amount": req.Amount}))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithEventKey(ctx, req.EventKey)
		}

		result, err := svc.RecordSale(ctx, aggregation.RecordSaleInput{
			EventKey: req.EventKey,
			MemberID: memberID,
			Amount:   amount,
			NewBuyer: req.NewBuyer,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func TierRecompute(svc aggregation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := parseMemberID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		change, err := svc.RecomputeTier(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, change)
	}
}
