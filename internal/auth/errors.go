package auth

import "passport/internal/apperr"

var (
	ErrInvalidCredentials   = apperr.New(apperr.KindUnauthorized, "invalid_credentials", "Incorrect email or password")
	ErrUnauthenticated      = apperr.New(apperr.KindUnauthorized, "not_authenticated", "Not authenticated")
	ErrInactiveUser         = apperr.New(apperr.KindForbidden, "inactive_user", "User is inactive")
	ErrEmailTaken           = apperr.New(apperr.KindConflict, "email_already_registered", "A user with this email already exists")
	ErrAlreadyLinkedToYou   = apperr.New(apperr.KindConflict, "sso_already_associated_this_user", "This SSO account is already linked to your user")
	ErrAlreadyLinkedToOther = apperr.New(apperr.KindConflict, "sso_already_associated_another_user", "This SSO account is linked to another user")
	ErrAccountNotFound      = apperr.New(apperr.KindNotFound, "sso_account_not_found", "SSO account not found")
	ErrLastAuthMethod       = apperr.New(apperr.KindForbidden, "last_auth_method", "Cannot remove the last way to sign in; set a password first")
	ErrUnsupportedGrant     = apperr.New(apperr.KindBadRequest, "unsupported_grant_type", "Unsupported grant type")
	ErrNoAddress            = apperr.New(apperr.KindBadRequest, "no_notification_address", "User has no address for this notification channel")
	ErrEmailRequired        = apperr.New(apperr.KindBadRequest, "email_required", "Email is required")
	ErrWeakPassword         = apperr.New(apperr.KindBadRequest, "weak_password", "Password must be at least 8 characters")
	ErrVerificationRequired = apperr.New(apperr.KindForbidden, "verification_required", "A verification token is required for this change")

	ErrRegistrationNotAllowed = apperr.New(apperr.KindForbidden, "registration_not_allowed", "Registration is not allowed for this account")
)
