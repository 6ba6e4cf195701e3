package bot

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const webhookBody = `{"update_id":7,"message":{"message_id":1,"date":0,"text":"/want 1396","chat":{"id":10,"type":"private"},"from":{"id":10,"is_bot":false,"first_name":"Аня"}}}`

func TestWebhookRejectsWrongSecret(t *testing.T) {
	h, sender, store := newHandler(t, nil)
	hook := h.Webhook("s3cret")

	for _, header := range []string{"", "guess"} {
		req := httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader(webhookBody))
		if header != "" {
			req.Header.Set(SecretHeader, header)
		}
		rec := httptest.NewRecorder()
		hook(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("секрет %q: ожидали 401, получили %d", header, rec.Code)
		}
	}
	if len(sender.messages) != 0 {
		t.Fatalf("апдейт без секрета не должен обрабатываться")
	}
	if list, _ := store.ListWatchlist(t.Context(), "10", 0); len(list) != 0 {
		t.Fatalf("запись не должна создаваться: %+v", list)
	}
}

func TestWebhookAcceptsValidSecret(t *testing.T) {
	h, sender, store := newHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader(webhookBody))
	req.Header.Set(SecretHeader, "s3cret")
	rec := httptest.NewRecorder()
	h.Webhook("s3cret")(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if list, _ := store.ListWatchlist(t.Context(), "10", 0); len(list) != 1 {
		t.Fatalf("ожидали одну запись в списке желаемого, получили %+v", list)
	}
	if len(sender.messages) == 0 {
		t.Fatalf("бот должен ответить")
	}
}

func TestWebhookWithoutConfiguredSecretRejects(t *testing.T) {
	h, _, _ := newHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader(webhookBody))
	rec := httptest.NewRecorder()
	h.Webhook("")(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401, получили %d", rec.Code)
	}
}

func TestSetWebhookParams(t *testing.T) {
	params := SetWebhookParams("https://example.org/bot/webhook", "s3cret")
	if params["url"] != "https://example.org/bot/webhook" || params["secret_token"] != "s3cret" {
		t.Fatalf("неверные параметры: %v", params)
	}
}
