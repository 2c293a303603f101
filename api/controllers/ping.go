package controllers

import (
	"net/http"

	"github.com/chuanlbx-ui/zhongdao-core/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"message": "pong"})
	}
}
