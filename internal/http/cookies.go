package http

import (
	"net/http"
	"time"
)

const (
	ssoStateCookieName    = "passport_sso_state"
	ssoVerifierCookieName = "passport_sso_verifier"
	ssoCookieTTL          = 10 * time.Minute
	ssoCookiePath         = "/sso"
)

// cookieSettings controls how the access token and SSO flow cookies are written.
type cookieSettings struct {
	name   string
	domain string
	secure bool
}

func (c cookieSettings) setAccessToken(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieSettings) clearAccessToken(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setFlow remembers a transient SSO value until the provider callback.
func (c cookieSettings) setFlow(w http.ResponseWriter, name, value string) {
	if value == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     ssoCookiePath,
		MaxAge:   int(ssoCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieSettings) clearFlow(w http.ResponseWriter) {
	for _, name := range []string{ssoStateCookieName, ssoVerifierCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     ssoCookiePath,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
