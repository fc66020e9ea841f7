// Package controllers file: controllers/session_store.go
package controllers

import (
	"crypto/sha256"
	"errors"
	"io"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"golang.org/x/crypto/hkdf"
)

// DraftSessionName is the cookie holding the onboarding draft.
const DraftSessionName = "playjosh_onboarding"

const draftMaxAge = 86400 * 7 // 7 days

// NewDraftStore builds the signed and encrypted cookie store for onboarding
// drafts. Both keys are derived from secret so one setting rotates them.
func NewDraftStore(secret string, secure bool) (sessions.Store, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}

	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("playjosh onboarding draft"))
	hashKey := make([]byte, 32)
	blockKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, hashKey); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(kdf, blockKey); err != nil {
		return nil, err
	}

	store := cookie.NewStore(hashKey, blockKey)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   draftMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return store, nil
}
