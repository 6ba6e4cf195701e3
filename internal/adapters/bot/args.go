package bot

import (
	"errors"
	"strconv"
	"strings"
)

var errUsage = errors.New("некорректные аргументы команды")

type activityArgs struct {
	showID int64
	rating *float64
	text   string
}

// parseWatchedArgs разбирает «ID [оценка] [комментарий]». Второе слово считается оценкой,
// только если это число; иначе оно начинает комментарий.
func parseWatchedArgs(payload string) (activityArgs, error) {
	args, rest, err := parseShowID(payload)
	if err != nil {
		return activityArgs{}, err
	}
	first, tail, _ := strings.Cut(rest, " ")
	if v, err := strconv.ParseFloat(strings.Replace(first, ",", ".", 1), 64); err == nil && first != "" {
		args.rating = &v
		rest = strings.TrimSpace(tail)
	}
	args.text = rest
	return args, nil
}

// parseWantArgs разбирает «ID [заметка]».
func parseWantArgs(payload string) (activityArgs, error) {
	args, rest, err := parseShowID(payload)
	if err != nil {
		return activityArgs{}, err
	}
	args.text = rest
	return args, nil
}

func parseShowID(payload string) (activityArgs, string, error) {
	head, rest, _ := strings.Cut(strings.TrimSpace(payload), " ")
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil || id <= 0 {
		return activityArgs{}, "", errUsage
	}
	return activityArgs{showID: id}, strings.TrimSpace(rest), nil
}
