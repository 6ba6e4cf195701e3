package ranking

import "showtrack/internal/domain"

// FoldWatched группирует просмотры по сериалам в порядке первого появления.
// perUser[i] — записи пользователя profiles[i]. Каждая запись увеличивает WatchCount,
// непустая оценка попадает в Ratings.
func FoldWatched(profiles []domain.Profile, perUser [][]domain.WatchedRecord) []domain.ShowAggregate {
	index := make(map[int64]int)
	var aggs []domain.ShowAggregate
	for i, records := range perUser {
		var profile domain.Profile
		if i < len(profiles) {
			profile = profiles[i]
		}
		for _, rec := range records {
			pos, ok := index[rec.ShowID]
			if !ok {
				pos = len(aggs)
				index[rec.ShowID] = pos
				aggs = append(aggs, domain.ShowAggregate{ShowID: rec.ShowID})
			}
			agg := &aggs[pos]
			agg.WatchCount++
			if rec.Rating != nil {
				agg.Ratings = append(agg.Ratings, *rec.Rating)
			}
			userID := rec.UserID
			if userID == "" {
				userID = profile.ID
			}
			agg.Watchers = append(agg.Watchers, domain.Watcher{
				UserID:    userID,
				Username:  profile.Name(),
				AvatarURL: profile.AvatarURL,
				Rating:    rec.Rating,
			})
		}
	}
	for i := range aggs {
		aggs[i].AverageRating = domain.Average(aggs[i].Ratings)
	}
	return aggs
}

// FoldWatchlist группирует записи списка желаемого по сериалам, считая уникальных пользователей.
// Имена зрителей заполняются позже.
func FoldWatchlist(records []domain.WatchlistRecord) []domain.ShowAggregate {
	index := make(map[int64]int)
	seen := make(map[int64]map[string]struct{})
	var aggs []domain.ShowAggregate
	for _, rec := range records {
		pos, ok := index[rec.ShowID]
		if !ok {
			pos = len(aggs)
			index[rec.ShowID] = pos
			aggs = append(aggs, domain.ShowAggregate{ShowID: rec.ShowID})
			seen[rec.ShowID] = make(map[string]struct{})
		}
		if _, dup := seen[rec.ShowID][rec.UserID]; dup {
			continue
		}
		seen[rec.ShowID][rec.UserID] = struct{}{}
		aggs[pos].WatchCount++
		aggs[pos].Watchers = append(aggs[pos].Watchers, domain.Watcher{UserID: rec.UserID})
	}
	return aggs
}

// FoldUsers группирует просмотры по пользователям.
func FoldUsers(records []domain.WatchedRecord, profiles []domain.Profile) []domain.UserAggregate {
	byID := make(map[string]domain.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	index := make(map[string]int)
	ratings := make([][]float64, 0)
	var users []domain.UserAggregate
	for _, rec := range records {
		pos, ok := index[rec.UserID]
		if !ok {
			pos = len(users)
			index[rec.UserID] = pos
			profile, found := byID[rec.UserID]
			if !found {
				profile = domain.Profile{ID: rec.UserID}
			}
			users = append(users, domain.UserAggregate{
				UserID:    rec.UserID,
				Username:  profile.Name(),
				AvatarURL: profile.AvatarURL,
			})
			ratings = append(ratings, nil)
		}
		users[pos].WatchedCount++
		if rec.Rating != nil {
			ratings[pos] = append(ratings[pos], *rec.Rating)
		}
	}
	for i := range users {
		users[i].AverageRating = domain.Average(ratings[i])
	}
	return users
}
