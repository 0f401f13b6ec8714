package http

import (
	"log/slog"
	"net/http"

	"passport/internal/auth"
	"passport/internal/notify"
)

// NotifyHandler serves verification code delivery and confirmation.
type NotifyHandler struct {
	notify *auth.NotifyService
	logger *slog.Logger
}

// NewNotifyHandler creates a NotifyHandler.
func NewNotifyHandler(notifyService *auth.NotifyService, logger *slog.Logger) *NotifyHandler {
	return &NotifyHandler{notify: notifyService, logger: logger}
}

// SendCode handles POST /notify/code?via=email|telegram.
func (h *NotifyHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeServiceError(w, h.logger, auth.ErrUnauthenticated)
		return
	}

	via := r.URL.Query().Get("via")
	if via == "" {
		via = string(notify.ChannelEmail)
	}
	channel, err := notify.ParseChannel(via)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := h.notify.SendCode(r.Context(), *user, channel); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"channel": string(channel)})
}

// VerifyCode handles GET /notify/code/verify?code=. A valid code yields a
// short lived verification token.
func (h *NotifyHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeServiceError(w, h.logger, auth.ErrUnauthenticated)
		return
	}

	token, err := h.notify.VerifyCode(r.Context(), *user, r.URL.Query().Get("code"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"verify_token": token})
}
