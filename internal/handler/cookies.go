package handler

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600
)

// cookieJar はハンドラーが発行するHttpOnly Cookieの共通属性。
// domainが空の場合はホスト限定Cookieになる。
type cookieJar struct {
	domain string
	secure bool
}

func (j cookieJar) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j cookieJar) expire(w http.ResponseWriter, name string) {
	j.set(w, name, "", -1)
}

// hostOnly はDomain属性を持たない同じ設定のcookieJarを返す。
func (j cookieJar) hostOnly() cookieJar {
	return cookieJar{secure: j.secure}
}

func jarFor(config AuthHandlerConfig) cookieJar {
	return cookieJar{domain: config.CookieDomain, secure: config.CookieSecure}
}

// generateState はOAuthのstateパラメータに使うランダム値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// stateSigner はOAuth state CookieにSESSION_SECRETのHMACを付けて改ざんを検出する。
// Cookieの値は "state.署名" の形式。
type stateSigner struct {
	key []byte
}

func newStateSigner(secret string) stateSigner {
	return stateSigner{key: []byte(secret)}
}

func (s stateSigner) mac(state string) string {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(state))
	return hex.EncodeToString(m.Sum(nil))
}

func (s stateSigner) sign(state string) string {
	return state + "." + s.mac(state)
}

// verify はCookieの署名が正しく、そのstateがクエリのstateと一致する場合にtrueを返す。
func (s stateSigner) verify(cookieValue, queryState string) bool {
	state, sig, ok := strings.Cut(cookieValue, ".")
	if !ok || state == "" || queryState == "" {
		return false
	}
	if !hmac.Equal([]byte(sig), []byte(s.mac(state))) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(state), []byte(queryState)) == 1
}
