package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"
)

const defaultCookieName = "scraperhub_session"

type cookieValue struct {
	Token string
}

// cookieJar encrypts the session token into a cookie.
type cookieJar struct {
	name   string
	secure bool
	codec  *securecookie.SecureCookie
}

// newCookieJar builds a jar from the configured keys. Missing keys are
// generated, so cookies do not survive a restart.
func newCookieJar(name string, hashKey, blockKey []byte, secure bool) (*cookieJar, error) {
	if name == "" {
		name = defaultCookieName
	}
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(64)
	}
	if len(blockKey) == 0 {
		blockKey = securecookie.GenerateRandomKey(32)
	}
	if hashKey == nil || blockKey == nil {
		return nil, errors.New("generate cookie keys")
	}
	switch len(blockKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("cookie block key must be 16, 24 or 32 bytes, got %d", len(blockKey))
	}
	return &cookieJar{
		name:   name,
		secure: secure,
		codec:  securecookie.New(hashKey, blockKey),
	}, nil
}

// token returns the session token carried by r, or "".
func (j *cookieJar) token(r *http.Request) string {
	c, err := r.Cookie(j.name)
	if err != nil {
		return ""
	}
	var v cookieValue
	if err := j.codec.Decode(j.name, c.Value, &v); err != nil {
		return ""
	}
	return v.Token
}

func (j *cookieJar) set(w http.ResponseWriter, token string) error {
	encoded, err := j.codec.Encode(j.name, cookieValue{Token: token})
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     j.name,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (j *cookieJar) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
