package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"showtrack/internal/domain"
)

// FormatFeedPage формирует HTML-текст страницы ленты.
func FormatFeedPage(page domain.FeedPage) string {
	if len(page.Entries) == 0 {
		if page.Index == 0 {
			return "Лента пока пуста. Отметьте сериал командой /watched"
		}
		return "Больше записей нет"
	}
	var b strings.Builder
	b.WriteString("📺 <b>Лента друзей</b>\n\n")
	for _, e := range page.Entries {
		b.WriteString(formatEntry(e))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func formatEntry(e domain.ActivityEntry) string {
	user := "<b>" + escapeHTML(e.Username) + "</b>"
	show := "«" + escapeHTML(e.ShowTitle) + "»"
	when := e.Timestamp.Format("02.01 15:04")
	switch e.Kind {
	case domain.KindWatched:
		line := fmt.Sprintf("✅ %s посмотрел(а) %s", user, show)
		if e.Rating != nil {
			line += " — " + formatRating(*e.Rating)
		}
		return line + " <i>" + when + "</i>"
	default:
		return fmt.Sprintf("🔖 %s хочет посмотреть %s <i>%s</i>", user, show, when)
	}
}

// FormatAggregates формирует нумерованный рейтинг сериалов.
func FormatAggregates(title string, aggs []domain.ShowAggregate, withRating bool) string {
	if len(aggs) == 0 {
		return "<b>" + escapeHTML(title) + "</b>\n\nПока нет данных"
	}
	var b strings.Builder
	b.WriteString("<b>" + escapeHTML(title) + "</b>\n\n")
	for i, a := range aggs {
		line := fmt.Sprintf("%d. %s — %s", i+1, escapeHTML(a.Title), plural(a.WatchCount, "зритель", "зрителя", "зрителей"))
		if withRating && len(a.Ratings) > 0 {
			line += ", средняя " + formatRating(a.AverageRating)
		}
		if names := watcherNames(a.Watchers); names != "" {
			line += "\n   " + names
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimSpace(b.String())
}

// FormatInterest формирует список «кто что хочет посмотреть».
func FormatInterest(entries []domain.InterestEntry) string {
	if len(entries) == 0 {
		return "<b>🔖 Хотят посмотреть</b>\n\nСписки пока пусты"
	}
	var b strings.Builder
	b.WriteString("<b>🔖 Хотят посмотреть</b>\n\n")
	for _, e := range entries {
		line := fmt.Sprintf("• <b>%s</b>: %s", escapeHTML(e.User.Name()), escapeHTML(e.Show.Title))
		if note := strings.TrimSpace(e.Note); note != "" {
			line += " — <i>" + escapeHTML(note) + "</i>"
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimSpace(b.String())
}

// FormatUsers формирует таблицу зрителей.
func FormatUsers(users []domain.UserAggregate) string {
	if len(users) == 0 {
		return "<b>🏆 Зрители</b>\n\nПока никого нет"
	}
	var b strings.Builder
	b.WriteString("<b>🏆 Зрители</b>\n\n")
	for i, u := range users {
		line := fmt.Sprintf("%d. %s — %s", i+1, escapeHTML(u.Username), plural(u.WatchedCount, "сериал", "сериала", "сериалов"))
		if u.AverageRating > 0 {
			line += ", средняя оценка " + formatRating(u.AverageRating)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimSpace(b.String())
}

// FormatShows формирует результаты поиска с идентификаторами для /watched и /want.
func FormatShows(shows []domain.ShowSummary) string {
	if len(shows) == 0 {
		return "Ничего не нашлось"
	}
	var b strings.Builder
	for _, s := range shows {
		line := fmt.Sprintf("<code>%d</code> %s", s.ID, escapeHTML(s.Title))
		if year := releaseYear(s.FirstAirDate); year != "" {
			line += " (" + year + ")"
		}
		if s.VoteAverage > 0 {
			line += " ⭐ " + formatRating(s.VoteAverage)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\nОтметить: /watched ID [оценка] [комментарий]\nВ список: /want ID [заметка]")
	return strings.TrimSpace(b.String())
}

func watcherNames(watchers []domain.Watcher) string {
	names := make([]string, 0, len(watchers))
	for _, w := range watchers {
		name := escapeHTML(w.Username)
		if w.Rating != nil {
			name += " (" + formatRating(*w.Rating) + ")"
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func formatRating(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "/10"
}

func releaseYear(date string) string {
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}

func plural(n int, one, few, many string) string {
	switch {
	case n%10 == 1 && n%100 != 11:
		return fmt.Sprintf("%d %s", n, one)
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 12 || n%100 > 14):
		return fmt.Sprintf("%d %s", n, few)
	default:
		return fmt.Sprintf("%d %s", n, many)
	}
}

func escapeHTML(s string) string {
	return html.EscapeString(s)
}
