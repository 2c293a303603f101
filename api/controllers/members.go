package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chuanlbx-ui/zhongdao-core/api/responses"
	"github.com/chuanlbx-ui/zhongdao-core/api/validators"
	"github.com/chuanlbx-ui/zhongdao-core/internal/members"
	pkgerrors "github.com/chuanlbx-ui/zhongdao-core/pkg/errors"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/logger"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/pagination"
)

type createMemberRequest struct {
	ID       *string `json:"id,omitempty" validate:"omitempty,uuid"`
	ParentID *string `json:"parent_id,omitempty" validate:"omitempty,uuid"`
	Nickname string  `json:"nickname" validate:"required,min=1,max=64"`
}

func MemberCreate(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createMemberRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := members.AddMemberInput{Nickname: req.Nickname}
		if req.ID != nil {
			id, err := uuid.Parse(*req.ID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid member id"))
				return
			}
			input.ID = &id
		}
		if req.ParentID != nil {
			parentID, err := uuid.Parse(*req.ParentID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid parent id"))
				return
			}
			input.ParentID = &parentID
		}

		member, err := svc.AddMember(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, member)
	}
}

func MemberGet(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := parseMemberID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		member, err := svc.GetMember(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, member)
	}
}

func MemberAncestors(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := parseMemberID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		chain, err := svc.GetAncestors(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"ancestors": chain})
	}
}

func MemberDescendants(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := parseMemberID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		maxDepth, err := validators.ParseQueryInt(r, "max_depth", 0, 1, 64)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 1000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subtree, err := svc.GetDescendants(r.Context(), memberID, members.DescendantOptions{
			MaxDepth: maxDepth,
			Limit:    limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"descendants": subtree})
	}
}

func MemberChildren(svc members.Service, logg *logger.Logger) http.HandlerFunc {
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

		list, err := svc.ListChildren(r.Context(), memberID, pagination.Params{
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

func parseMemberID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "memberId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid member id").
			WithDetails(map[string]any{"member_id": raw})
	}
	return id, nil
}
