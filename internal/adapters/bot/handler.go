package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"showtrack/internal/adapters/telegram"
	"showtrack/internal/domain"
	"showtrack/internal/infra/metrics"
	"showtrack/internal/usecase/activity"
	"showtrack/internal/usecase/feed"
	"showtrack/internal/usecase/ranking"
	"showtrack/internal/usecase/shows"
)

const (
	updateTTL      = 24 * time.Hour
	telegramTarget = "api.telegram.org"
)

// Sender отправляет запросы в Bot API. Реализуется *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Deduper пропускает повторно доставленные апдейты.
type Deduper interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error)
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot        Sender
	log        zerolog.Logger
	feedUC     *feed.Service
	rankingUC  *ranking.Service
	showsUC    *shows.Service
	activityUC *activity.Service
	dedupe     Deduper
	webAppURL  string
}

// NewHandler создаёт обработчик. dedupe может быть nil.
func NewHandler(bot Sender, log zerolog.Logger, feedUC *feed.Service, rankingUC *ranking.Service, showsUC *shows.Service, activityUC *activity.Service, dedupe Deduper, webAppURL string) *Handler {
	return &Handler{
		bot:        bot,
		log:        log,
		feedUC:     feedUC,
		rankingUC:  rankingUC,
		showsUC:    showsUC,
		activityUC: activityUC,
		dedupe:     dedupe,
		webAppURL:  webAppURL,
	}
}

// HandleUpdate обрабатывает входящий апдейт. Повторная доставка того же update_id игнорируется.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if h.dedupe == nil || upd.UpdateID == 0 {
		h.dispatch(ctx, upd)
		return
	}
	key := "bot:update:" + strconv.Itoa(upd.UpdateID)
	ran, err := h.dedupe.Once(ctx, key, updateTTL, func() error {
		h.dispatch(ctx, upd)
		return nil
	})
	if err != nil && !ran {
		h.log.Warn().Err(err).Int("update", upd.UpdateID).Msg("bot: дедупликация недоступна")
		h.dispatch(ctx, upd)
		return
	}
	if !ran {
		h.log.Debug().Int("update", upd.UpdateID).Msg("bot: повторный апдейт пропущен")
	}
}

func (h *Handler) dispatch(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	command, payload := splitCommand(text)
	switch command {
	case "/start":
		h.handleStart(ctx, msg)
	case "/help":
		h.reply(msg.Chat.ID, buildHelpMessage(), h.mainKeyboard())
	case "/feed":
		h.handleFeed(ctx, msg.Chat.ID)
	case "/top":
		h.handleView(ctx, msg.Chat.ID, "top")
	case "/best":
		h.handleView(ctx, msg.Chat.ID, "best")
	case "/wanted":
		h.handleView(ctx, msg.Chat.ID, "wanted")
	case "/interest":
		h.handleView(ctx, msg.Chat.ID, "interest")
	case "/users":
		h.handleView(ctx, msg.Chat.ID, "users")
	case "/search":
		h.handleSearch(ctx, msg.Chat.ID, payload)
	case "/watched":
		h.handleWatched(ctx, msg, payload)
	case "/want":
		h.handleWant(ctx, msg, payload)
	case "/me":
		h.handleMe(ctx, msg)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help", nil)
	}
}

// splitCommand отделяет команду от аргументов и отбрасывает суффикс @botname.
func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	command, payload, _ := strings.Cut(text, " ")
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	return strings.ToLower(command), strings.TrimSpace(payload)
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя", nil)
		return
	}
	if _, err := h.ensureProfile(ctx, msg.From); err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("bot: не удалось сохранить профиль")
		h.reply(msg.Chat.ID, "Не удалось сохранить профиль. Попробуйте позже", nil)
		return
	}
	h.reply(msg.Chat.ID, buildStartMessage(), h.mainKeyboard())
}

func (h *Handler) ensureProfile(ctx context.Context, from *tgbotapi.User) (domain.Profile, error) {
	return h.activityUC.EnsureProfile(ctx, domain.Profile{
		ID:          strconv.FormatInt(from.ID, 10),
		DisplayName: displayName(from),
	})
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" && u.UserName != "" {
		return "@" + u.UserName
	}
	return name
}

func (h *Handler) handleFeed(ctx context.Context, chatID int64) {
	page, err := h.feedUC.Open(ctx)
	if err != nil {
		h.replyError(chatID, "лента", err)
		return
	}
	h.reply(chatID, FormatFeedPage(page), feedKeyboard(page))
}

func (h *Handler) handleFeedPage(ctx context.Context, chatID int64, data string) {
	snapshotID, index, ok := parseFeedCallback(data)
	if !ok {
		h.reply(chatID, "Некорректная кнопка", nil)
		return
	}
	page, err := h.feedUC.PageByID(ctx, snapshotID, index)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			h.reply(chatID, "Лента устарела, откройте /feed заново", nil)
			return
		}
		h.replyError(chatID, "лента", err)
		return
	}
	h.reply(chatID, FormatFeedPage(page), feedKeyboard(page))
}

func feedKeyboard(page domain.FeedPage) *tgbotapi.InlineKeyboardMarkup {
	if page.Done {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬇️ Ещё", fmt.Sprintf("feed:%s:%d", page.SnapshotID, page.Index+1)),
	))
	return &markup
}

func parseFeedCallback(data string) (string, int, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "feed" || parts[1] == "" {
		return "", 0, false
	}
	index, err := strconv.Atoi(parts[2])
	if err != nil || index < 0 {
		return "", 0, false
	}
	return parts[1], index, true
}

func (h *Handler) handleView(ctx context.Context, chatID int64, view string) {
	var (
		text string
		err  error
	)
	switch view {
	case "top":
		var aggs []domain.ShowAggregate
		aggs, err = h.rankingUC.MostWatched(ctx)
		text = FormatAggregates("👀 Самое популярное", aggs, true)
	case "best":
		var aggs []domain.ShowAggregate
		aggs, err = h.rankingUC.BestRated(ctx)
		text = FormatAggregates("⭐ Лучшие оценки", aggs, true)
	case "wanted":
		var aggs []domain.ShowAggregate
		aggs, err = h.rankingUC.WatchlistPopularity(ctx)
		text = FormatAggregates("🔥 Чаще всего в планах", aggs, false)
	case "interest":
		var entries []domain.InterestEntry
		entries, err = h.rankingUC.InterestFeed(ctx)
		text = FormatInterest(entries)
	case "users":
		var users []domain.UserAggregate
		users, err = h.rankingUC.UserLeaderboard(ctx)
		text = FormatUsers(users)
	default:
		return
	}
	if err != nil {
		h.replyError(chatID, "рейтинг", err)
		return
	}
	h.reply(chatID, text, nil)
}

func (h *Handler) handleSearch(ctx context.Context, chatID int64, query string) {
	if query == "" {
		h.reply(chatID, "Используйте формат: /search название", nil)
		return
	}
	found, err := h.showsUC.Search(ctx, query)
	if err != nil {
		h.replyError(chatID, "поиск", err)
		return
	}
	h.reply(chatID, FormatShows(found), nil)
}

func (h *Handler) handleWatched(ctx context.Context, msg *tgbotapi.Message, payload string) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя", nil)
		return
	}
	args, err := parseWatchedArgs(payload)
	if err != nil {
		h.reply(msg.Chat.ID, "Используйте формат: /watched ID [оценка 0-10] [комментарий]", nil)
		return
	}
	if _, err := h.ensureProfile(ctx, msg.From); err != nil {
		h.replyError(msg.Chat.ID, "профиль", err)
		return
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	if _, err := h.activityUC.MarkWatched(ctx, userID, args.showID, args.rating, args.text); err != nil {
		h.replyError(msg.Chat.ID, "отметка", err)
		return
	}
	h.reply(msg.Chat.ID, "Отмечено как просмотренное ✅", nil)
}

func (h *Handler) handleWant(ctx context.Context, msg *tgbotapi.Message, payload string) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя", nil)
		return
	}
	args, err := parseWantArgs(payload)
	if err != nil {
		h.reply(msg.Chat.ID, "Используйте формат: /want ID [заметка]", nil)
		return
	}
	if _, err := h.ensureProfile(ctx, msg.From); err != nil {
		h.replyError(msg.Chat.ID, "профиль", err)
		return
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	if _, err := h.activityUC.AddToWatchlist(ctx, userID, args.showID, args.text); err != nil {
		h.replyError(msg.Chat.ID, "список", err)
		return
	}
	h.reply(msg.Chat.ID, "Добавлено в список «хочу посмотреть» 🔖", nil)
}

func (h *Handler) handleMe(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя", nil)
		return
	}
	if _, err := h.ensureProfile(ctx, msg.From); err != nil {
		h.replyError(msg.Chat.ID, "профиль", err)
		return
	}
	overview, err := h.activityUC.Overview(ctx, strconv.FormatInt(msg.From.ID, 10))
	if err != nil {
		h.replyError(msg.Chat.ID, "профиль", err)
		return
	}
	lines := []string{
		"<b>" + escapeHTML(overview.Profile.Name()) + "</b>",
		fmt.Sprintf("Просмотрено: %d", len(overview.Watched)),
		fmt.Sprintf("В планах: %d", len(overview.Watchlist)),
	}
	h.reply(msg.Chat.ID, strings.Join(lines, "\n"), nil)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		h.answerCallback(cb)
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data
	switch {
	case data == "help_menu":
		h.reply(chatID, buildHelpMessage(), h.mainKeyboard())
	case data == "feed":
		h.handleFeed(ctx, chatID)
	case strings.HasPrefix(data, "feed:"):
		h.handleFeedPage(ctx, chatID, data)
	case strings.HasPrefix(data, "view:"):
		h.handleView(ctx, chatID, strings.TrimPrefix(data, "view:"))
	}
	h.answerCallback(cb)
}

func (h *Handler) answerCallback(cb *tgbotapi.CallbackQuery) {
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", telegramTarget, start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось ответить на callback")
	}
}

func (h *Handler) replyError(chatID int64, what string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRating):
		h.reply(chatID, "Оценка должна быть от 0 до 10", nil)
	case errors.Is(err, activity.ErrInvalidShow), errors.Is(err, shows.ErrInvalidID):
		h.reply(chatID, "Некорректный идентификатор сериала", nil)
	case errors.Is(err, activity.ErrTextTooLong):
		h.reply(chatID, "Слишком длинный текст", nil)
	case errors.Is(err, domain.ErrNotFound):
		h.reply(chatID, "Не найдено", nil)
	default:
		h.log.Error().Err(err).Str("what", what).Msg("bot: ошибка обработки команды")
		h.reply(chatID, fmt.Sprintf("Не удалось выполнить запрос (%s). Попробуйте позже", what), nil)
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if i == len(parts)-1 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", telegramTarget, start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Int64("chat", chatID).Msg("bot: не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📺 Лента", "feed"),
			tgbotapi.NewInlineKeyboardButtonData("👀 Популярное", "view:top"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⭐ Лучшие", "view:best"),
			tgbotapi.NewInlineKeyboardButtonData("🔥 В планах", "view:wanted"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔖 Кто что хочет", "view:interest"),
			tgbotapi.NewInlineKeyboardButtonData("🏆 Зрители", "view:users"),
		),
	}
	if h.webAppURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📱 Открыть приложение", h.webAppURL),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("ℹ️ Помощь", "help_menu"),
	))
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func buildStartMessage() string {
	lines := []string{
		"👋 Добро пожаловать в ShowTrack!",
		"",
		"Отмечайте просмотренные сериалы, ставьте оценки и смотрите, что смотрят друзья.",
		"",
		"1. 🔎 Найдите сериал: /search Во все тяжкие.",
		"2. ✅ Отметьте просмотр: /watched 1396 9 лучший финал.",
		"3. 🔖 Добавьте в планы: /want 1438 посоветовали.",
		"4. 📺 Откройте ленту друзей: /feed.",
		"",
		"Под кнопкой \"ℹ️ Помощь\" вы найдёте полный список команд.",
	}
	return strings.Join(lines, "\n")
}

func buildHelpMessage() string {
	sections := []string{
		"📖 Основные команды:",
		"",
		"Активность:",
		"• /search название — найти сериал и узнать его ID.",
		"• /watched ID [оценка] [комментарий] — отметить просмотр.",
		"• /want ID [заметка] — добавить в список «хочу посмотреть».",
		"• /me — ваша статистика.",
		"",
		"Лента и рейтинги:",
		"• /feed — последние события друзей.",
		"• /top — самые просматриваемые сериалы.",
		"• /best — сериалы с лучшими оценками.",
		"• /wanted — что чаще всего добавляют в планы.",
		"• /interest — кто что хочет посмотреть.",
		"• /users — самые активные зрители.",
	}
	return strings.Join(sections, "\n")
}
