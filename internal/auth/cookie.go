package auth

import (
	"net/http"
	"strings"
)

const CookieName = "token"

// SetTokenCookie 写入会话 cookie。没有 Expires，浏览器关闭即失效。
func SetTokenCookie(w http.ResponseWriter, r *http.Request, token string, alwaysSecure bool) {
	if token == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   alwaysSecure || isSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if strings.EqualFold(strings.TrimSpace(p), "https") {
				return true
			}
		}
	}
	return false
}
