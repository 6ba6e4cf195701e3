package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"showtrack/internal/domain"
)

func TestMemoryUpsertWatchedKeepsSingleRecord(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	eight, six := 8.0, 6.0

	first, err := m.UpsertWatched(ctx, domain.WatchedRecord{UserID: "u1", ShowID: 42, Rating: &eight})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := m.UpsertWatched(ctx, domain.WatchedRecord{UserID: "u1", ShowID: 42, Rating: &six, Comment: "пересмотрел"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("повторная отметка должна обновлять запись, получили %s и %s", first.ID, second.ID)
	}
	all, _ := m.ListWatched(ctx, "", 0)
	if len(all) != 1 || *all[0].Rating != 6 || all[0].Comment != "пересмотрел" {
		t.Fatalf("неверное состояние: %+v", all)
	}
}

func TestMemoryListsNewestFirstWithLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		user := "u1"
		if i%2 == 1 {
			user = "u2"
		}
		if _, err := m.UpsertWatchlist(ctx, domain.WatchlistRecord{UserID: user, ShowID: int64(i + 1), CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	recent, _ := m.ListWatchlist(ctx, "", 2)
	if len(recent) != 2 || recent[0].ShowID != 5 || recent[1].ShowID != 4 {
		t.Fatalf("ожидали две последние записи, получили %+v", recent)
	}
	own, _ := m.ListWatchlist(ctx, "u2", 0)
	if len(own) != 2 {
		t.Fatalf("ожидали 2 записи u2, получили %d", len(own))
	}
}

func TestMemoryDeleteIsScopedToOwner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec, _ := m.UpsertWatched(ctx, domain.WatchedRecord{UserID: "u1", ShowID: 1})

	if err := m.DeleteWatched(ctx, "u2", rec.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("чужая запись не должна удаляться, получили %v", err)
	}
	if err := m.DeleteWatched(ctx, "u1", rec.ID); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if left, _ := m.ListWatched(ctx, "", 0); len(left) != 0 {
		t.Fatalf("запись должна быть удалена")
	}
}

func TestMemoryProfiles(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.GetProfile(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	m.UpsertProfile(ctx, domain.Profile{ID: "u2", DisplayName: "Б"})
	m.UpsertProfile(ctx, domain.Profile{ID: "u1", DisplayName: "А"})
	m.UpsertProfile(ctx, domain.Profile{ID: "u2", DisplayName: "Борис"})
	list, _ := m.ListProfiles(ctx)
	if len(list) != 2 || list[0].DisplayName != "Борис" || list[1].ID != "u1" {
		t.Fatalf("неверный список профилей: %+v", list)
	}
}
