package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"

	"support-chat-client/internal/model"
)

const sessionCookieName = "support_admin_session"

const sessionTTL = 12 * time.Hour

type authenticator struct {
	secret []byte
	store  *Store
	now    func() time.Time
}

func newAuthenticator(secret string, store *Store) *authenticator {
	return &authenticator{
		secret: []byte(secret),
		store:  store,
		now:    time.Now,
	}
}

func (a *authenticator) createToken(user model.User) (string, error) {
	claims := jwt.MapClaims{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
		"exp":   a.now().Add(sessionTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(tokenString) == 0 {
		return nil, fmt.Errorf("token string is empty")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %v", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid - unauthorized")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("claims of unauthorized type")
	}
	return claims, nil
}

func (a *authenticator) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  a.now().Add(sessionTTL),
	})
}

func (a *authenticator) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// userFromRequest resolves the operator behind the session cookie.
func (a *authenticator) userFromRequest(r *http.Request) (model.User, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return model.User{}, fmt.Errorf("missing session cookie")
	}

	claims, err := a.parseToken(cookie.Value)
	if err != nil {
		return model.User{}, err
	}

	expires, ok := claims["exp"].(float64)
	if !ok || a.now().Unix() > int64(expires) {
		return model.User{}, fmt.Errorf("token expired")
	}

	id, _ := claims["id"].(string)
	user, err := a.store.UserByID(id)
	if err != nil {
		return model.User{}, fmt.Errorf("unknown session user")
	}
	if user.Role != model.RoleAdmin {
		return model.User{}, fmt.Errorf("not an operator account")
	}
	return user, nil
}

// RequireAdmin rejects requests that do not carry a valid operator session.
func (a *authenticator) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.userFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
