package controllers

import (
	"net/http"

	"github.com/chuanlbx-ui/zhongdao-core/api/responses"
	"github.com/chuanlbx-ui/zhongdao-core/internal/tiers"
)

func TierCatalog(catalog *tiers.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]any{
			"tiers": catalog.Definitions(),
			"plan":  catalog.Plan(),
		})
	}
}
