/*
Package handler provides HTTP handler functions for the operator API.
*/
package handler

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"wnschat/internal/pkg/auth/jwt"
	"wnschat/internal/pkg/errs"
	"wnschat/internal/pkg/req"
	"wnschat/internal/pkg/resp"
)

type StatusResponse struct {
	ServerName          string `json:"serverName"`
	ProtocolVersion     uint32 `json:"protocolVersion"`
	UptimeSeconds       int64  `json:"uptimeSeconds"`
	UsersOnline         int    `json:"usersOnline"`
	ConnectionsAccepted int64  `json:"connectionsAccepted"`
	PasswordRequired    bool   `json:"passwordRequired"`
}

type UserResponse struct {
	Username        string `json:"username"`
	PermissionLevel string `json:"permissionLevel"`
	RemoteAddr      string `json:"remoteAddr"`
}

type AnnounceInput struct {
	Text string `json:"text"`
}

// maxAnnouncementLength bounds announcements in bytes.
const maxAnnouncementLength = 4096

// HandleStatus reports the server counters.
func HandleStatus(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Server.Stats()

		resp.RespondSuccess(w, r, StatusResponse{
			ServerName:          st.ServerName,
			ProtocolVersion:     st.ProtocolVersion,
			UptimeSeconds:       int64(st.Uptime.Seconds()),
			UsersOnline:         st.UsersOnline,
			ConnectionsAccepted: st.ConnectionsAccepted,
			PasswordRequired:    st.PasswordRequired,
		})
	}
}

// HandleUsers lists the remote users currently online.
func HandleUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users := []UserResponse{}
		for _, c := range deps.Server.Roster().Remotes() {
			users = append(users, UserResponse{
				Username:        c.Username(),
				PermissionLevel: c.PermissionLevel().String(),
				RemoteAddr:      c.RemoteAddr(),
			})
		}

		resp.RespondSuccess(w, r, users)
	}
}

// HandleAnnounce broadcasts a console announcement to every user.
func HandleAnnounce(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input AnnounceInput
		if err := req.BindJSON(w, r, &input); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		text := strings.TrimSpace(input.Text)
		if text == "" || len(text) > maxAnnouncementLength || strings.ContainsAny(text, "\r\n") {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		deps.Server.Announce(text)

		operator := ""
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			operator = payload.Operator
		}
		zerolog.Ctx(r.Context()).Info().Str("operator", operator).Str("text", text).Msg("Announcement sent")

		resp.RespondSuccess(w, r, nil)
	}
}
