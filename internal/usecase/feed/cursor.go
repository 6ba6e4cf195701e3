package feed

import (
	"context"

	"showtrack/internal/domain"
)

// Cursor накапливает страницы одного снимка.
type Cursor struct {
	svc     *Service
	snap    domain.FeedSnapshot
	next    int
	entries []domain.ActivityEntry
	done    bool
}

// NewCursor создаёт курсор по снимку.
func (s *Service) NewCursor(snap domain.FeedSnapshot) *Cursor {
	return &Cursor{svc: s, snap: snap, done: len(snap.Rows) == 0}
}

// LoadMore разрешает следующую страницу и добавляет её к накопленным записям.
// После последней страницы вызов ничего не делает.
func (c *Cursor) LoadMore(ctx context.Context) (domain.FeedPage, error) {
	if c.done {
		return domain.FeedPage{SnapshotID: c.snap.ID, Index: c.next, Done: true}, nil
	}
	page, err := c.svc.Page(ctx, c.snap, c.next)
	if err != nil {
		return domain.FeedPage{}, err
	}
	c.entries = append(c.entries, page.Entries...)
	c.next++
	c.done = page.Done
	return page, nil
}

// Entries возвращает все накопленные записи.
func (c *Cursor) Entries() []domain.ActivityEntry {
	return append([]domain.ActivityEntry(nil), c.entries...)
}

// Done сообщает, что все строки снимка обработаны.
func (c *Cursor) Done() bool { return c.done }
