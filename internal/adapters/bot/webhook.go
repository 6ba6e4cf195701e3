package bot

import (
	"crypto/subtle"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/goccy/go-json"
)

// SecretHeader — заголовок, в котором Telegram передаёт secret_token вебхука.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Webhook принимает апдейты от Telegram. Запросы без верного секрета отклоняются.
func (h *Handler) Webhook(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(SecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			h.log.Warn().Str("remote", r.RemoteAddr).Msg("bot: вебхук с неверным секретом")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	}
}

// SetWebhookParams собирает параметры setWebhook вместе с secret_token.
func SetWebhookParams(url, secret string) tgbotapi.Params {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	return params
}
