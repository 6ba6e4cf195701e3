package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
)

// InitDataHeader — заголовок с initData мини-приложения Telegram.
const InitDataHeader = "X-Telegram-Init-Data"

var (
	ErrInitDataMissing = errors.New("init_data отсутствует")
	ErrInitDataInvalid = errors.New("подпись недействительна")
	ErrInitDataExpired = errors.New("init_data устарели")
)

// WebAppUser — пользователь из подписанного поля user.
type WebAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
}

// UserID возвращает идентификатор пользователя в виде строки.
func (u WebAppUser) UserID() string { return strconv.FormatInt(u.ID, 10) }

// DisplayName собирает отображаемое имя.
func (u WebAppUser) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" && u.Username != "" {
		return "@" + u.Username
	}
	return name
}

type userKey struct{}

// UserFromContext возвращает пользователя, проверенного WebAppAuthMiddleware.
func UserFromContext(ctx context.Context) (WebAppUser, bool) {
	u, ok := ctx.Value(userKey{}).(WebAppUser)
	return u, ok
}

// WithUser кладёт пользователя в контекст.
func WithUser(ctx context.Context, u WebAppUser) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// WebAppAuthMiddleware проверяет initData по токену бота. maxAge <= 0 отключает проверку давности.
func WebAppAuthMiddleware(botToken string, maxAge time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initData := extractInitData(r)
			if initData == "" {
				WriteError(w, http.StatusUnauthorized, ErrInitDataMissing)
				return
			}
			user, err := ValidateInitData(initData, botToken, maxAge, time.Now())
			if err != nil {
				WriteError(w, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func extractInitData(r *http.Request) string {
	if v := r.Header.Get(InitDataHeader); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "tma ") {
		return strings.TrimPrefix(auth, "tma ")
	}
	return r.URL.Query().Get("init_data")
}

// ValidateInitData проверяет подпись initData и возвращает пользователя из поля user.
func ValidateInitData(initData, botToken string, maxAge time.Duration, now time.Time) (WebAppUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return WebAppUser{}, ErrInitDataInvalid
	}
	expected, err := hex.DecodeString(values.Get("hash"))
	if err != nil || len(expected) == 0 {
		return WebAppUser{}, ErrInitDataInvalid
	}
	if !hmac.Equal(SignInitData(values, botToken), expected) {
		return WebAppUser{}, ErrInitDataInvalid
	}
	if maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil || now.Sub(time.Unix(authDate, 0)) > maxAge {
			return WebAppUser{}, ErrInitDataExpired
		}
	}
	var user WebAppUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return WebAppUser{}, ErrInitDataInvalid
	}
	return user, nil
}

// SignInitData считает подпись по всем полям, кроме hash.
func SignInitData(values url.Values, botToken string) []byte {
	pairs := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		pairs = append(pairs, k+"="+values.Get(k))
	}
	sort.Strings(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(pairs, "\n")))
	return h.Sum(nil)
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON отправляет значение в формате JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}
