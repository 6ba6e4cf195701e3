package telegram

import "strings"

// MessageLimit — максимальная длина сообщения Bot API в символах.
const MessageLimit = 4096

// SplitMessage делит текст на сообщения в пределах MessageLimit.
func SplitMessage(text string) []string {
	return Split(text, MessageLimit)
}

// Split собирает части из целых строк, не превышая limit символов.
// Строка длиннее limit режется по пробелу, и никогда внутри HTML-тега или сущности.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	var (
		parts []string
		cur   []rune
	)
	flush := func() {
		if chunk := strings.Trim(string(cur), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		cur = cur[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			cut := safeCut(runes, limit)
			cur = append(cur, runes[:cut]...)
			flush()
			runes = []rune(strings.TrimLeft(string(runes[cut:]), " "))
		}
		need := len(runes)
		if len(cur) > 0 {
			need++
		}
		if len(cur)+need > limit {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, '\n')
		}
		cur = append(cur, runes...)
	}
	flush()
	return parts
}

// safeCut выбирает позицию разреза не дальше limit.
func safeCut(runes []rune, limit int) int {
	cut := limit
	if space := lastIndex(runes[:cut], ' '); space > 0 && space >= limit/2 {
		cut = space
	}
	if lt := lastIndex(runes[:cut], '<'); lt > lastIndex(runes[:cut], '>') && lt > 0 {
		cut = lt
	}
	if amp := lastIndex(runes[:cut], '&'); amp > lastIndex(runes[:cut], ';') && amp > 0 {
		cut = amp
	}
	return cut
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
