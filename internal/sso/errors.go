package sso

import "passport/internal/apperr"

var (
	ErrDisabled         = apperr.New(apperr.KindServiceUnavailable, "sso_disabled", "SSO via this provider is disabled")
	ErrLoginFailed      = apperr.New(apperr.KindUnauthorized, "sso_login_error", "SSO login error")
	ErrNotSupported     = apperr.New(apperr.KindBadRequest, "sso_not_supported", "Operation not supported by this provider")
	ErrUnknownProvider  = apperr.New(apperr.KindNotFound, "sso_unknown_provider", "Unknown SSO provider")
	ErrNotAuthorized    = apperr.New(apperr.KindInternal, "sso_not_authorized", "Authorization data not found; login must run first")
	ErrMissingRedirect  = apperr.New(apperr.KindBadRequest, "sso_missing_redirect_uri", "redirect_uri must be provided")
	ErrInvalidSignature = apperr.New(apperr.KindUnauthorized, "invalid_telegram_hash", "Invalid Telegram data hash")
	ErrAuthDataExpired  = apperr.New(apperr.KindUnauthorized, "telegram_auth_data_expired", "Telegram auth data expired")
)
