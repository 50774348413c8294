package usersync

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RXIDCookieName is the cookie carrying the exchange's own local user id,
// per the cookie contract: opaque, prefix "rx-" followed by a UUID.
const RXIDCookieName = "rxid"

const rxidPrefix = "rx-"

// NewRXID mints a fresh local user id.
func NewRXID() string {
	return rxidPrefix + uuid.NewString()
}

// ValidRXID reports whether v looks like a value this exchange minted,
// rather than something forged or left over from a different cookie
// format.
func ValidRXID(v string) bool {
	if !strings.HasPrefix(v, rxidPrefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(v, rxidPrefix))
	return err == nil
}

// RXIDFromRequest reads the rxid cookie, returning "" if absent or
// malformed.
func RXIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(RXIDCookieName)
	if err != nil {
		return ""
	}
	if !ValidRXID(c.Value) {
		return ""
	}
	return c.Value
}

// GetOrSetRXID returns the caller's local id, minting and setting a new
// cookie when one isn't already present. The second return value is true
// when a fresh id was minted this request.
func GetOrSetRXID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if id := RXIDFromRequest(r); id != "" {
		return id, false
	}

	id := NewRXID()
	http.SetCookie(w, &http.Cookie{
		Name:     RXIDCookieName,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().Add(DefaultTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, true
}
