package http

import (
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

const testToken = "123456:ABC"

func signedInitData(t *testing.T, user string, authDate time.Time) string {
	t.Helper()
	values := url.Values{
		"query_id":  {"AAH"},
		"user":      {user},
		"auth_date": {strconv.FormatInt(authDate.Unix(), 10)},
	}
	values.Set("hash", hex.EncodeToString(SignInitData(values, testToken)))
	return values.Encode()
}

func TestValidateInitData(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	good := signedInitData(t, `{"id":42,"first_name":"Аня","last_name":"К","username":"anya"}`, now.Add(-time.Minute))

	user, err := ValidateInitData(good, testToken, time.Hour, now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if user.UserID() != "42" || user.DisplayName() != "Аня К" {
		t.Fatalf("неверный пользователь: %+v", user)
	}

	if _, err := ValidateInitData(good, "other-token", time.Hour, now); !errors.Is(err, ErrInitDataInvalid) {
		t.Fatalf("чужой токен должен отклоняться, получили %v", err)
	}
	if _, err := ValidateInitData(good, testToken, time.Hour, now.Add(2*time.Hour)); !errors.Is(err, ErrInitDataExpired) {
		t.Fatalf("ожидали ErrInitDataExpired, получили %v", err)
	}

	tampered, _ := url.ParseQuery(good)
	tampered.Set("user", `{"id":7}`)
	if _, err := ValidateInitData(tampered.Encode(), testToken, 0, now); !errors.Is(err, ErrInitDataInvalid) {
		t.Fatalf("изменённые данные должны отклоняться, получили %v", err)
	}
}

func TestWebAppAuthMiddleware(t *testing.T) {
	initData := signedInitData(t, `{"id":9,"username":"bob"}`, time.Now())
	var seen WebAppUser
	handler := WebAppAuthMiddleware(testToken, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set(InitDataHeader, initData)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen.ID != 9 || seen.DisplayName() != "@bob" {
		t.Fatalf("ожидали успешную проверку, код %d, пользователь %+v", rec.Code, seen)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("без init_data ожидали 401, получили %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me?init_data="+url.QueryEscape(initData), nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("init_data в query должны приниматься, получили %d", rec.Code)
	}
}
