package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db, now: time.Now} }

func (r *Repo) Close() error { return r.db.Close() }

const itemColumns = `id, room_id, requester_id, title, source_ref, resolved_ref, local_resource_path, added_at`

// AddItem appends an item. resolvedRef is the exact match the title came
// from; it may be empty when the lookup had no canonical page.
func (r *Repo) AddItem(ctx context.Context, roomID, requesterID, title, sourceRef, resolvedRef string) (QueueItem, error) {
	addedAt := r.now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO queue_items(room_id, requester_id, title, source_ref, resolved_ref, added_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?)`,
		roomID, requesterID, title, sourceRef, resolvedRef, addedAt.UnixMilli(),
	)
	if err != nil {
		return QueueItem{}, errors.Wrap(err, "insert queue item")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return QueueItem{}, errors.Wrap(err, "queue item id")
	}
	return QueueItem{
		ID:          id,
		RoomID:      roomID,
		RequesterID: requesterID,
		Title:       title,
		SourceRef:   sourceRef,
		ResolvedRef: resolvedRef,
		AddedAt:     time.UnixMilli(addedAt.UnixMilli()),
	}, nil
}

// RemoveItem deletes the item and reports whether it existed. Deleting an absent id is not an error.
func (r *Repo) RemoveItem(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, errors.Wrapf(err, "delete queue item %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// ListItems returns the room's queue in insertion order. Ids are
// AUTOINCREMENT, so they order correctly even if the wall clock steps back.
func (r *Repo) ListItems(ctx context.Context, roomID string) ([]QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM queue_items
		WHERE room_id = ?
		ORDER BY id ASC`, roomID)
	if err != nil {
		return nil, errors.Wrap(err, "list queue items")
	}
	defer rows.Close()

	items := []QueueItem{}
	for rows.Next() {
		var (
			it       QueueItem
			resolved sql.NullString
			path     sql.NullString
			addedAt  int64
		)
		if err := rows.Scan(&it.ID, &it.RoomID, &it.RequesterID, &it.Title, &it.SourceRef, &resolved, &path, &addedAt); err != nil {
			return nil, errors.Wrap(err, "scan queue item")
		}
		it.ResolvedRef = resolved.String
		it.LocalResourcePath = path.String
		it.AddedAt = time.UnixMilli(addedAt)
		items = append(items, it)
	}
	return items, errors.Wrap(rows.Err(), "iterate queue items")
}

func (r *Repo) CountItems(ctx context.Context, roomID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_items WHERE room_id = ?`, roomID,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count queue items")
	}
	return n, nil
}

// SetResourcePath records where the item's audio lives. The first recorded path wins.
func (r *Repo) SetResourcePath(ctx context.Context, id int64, path string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE queue_items SET local_resource_path = ?
		WHERE id = ? AND (local_resource_path IS NULL OR local_resource_path = '')`,
		path, id,
	)
	return errors.Wrapf(err, "set resource path for %d", id)
}

func (r *Repo) PurgeRoom(ctx context.Context, roomID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queue_items WHERE room_id = ?`, roomID)
	if err != nil {
		return 0, errors.Wrap(err, "purge room")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}

// ResourceRefs returns every live item id with its recorded path, across all rooms.
func (r *Repo) ResourceRefs(ctx context.Context) ([]ResourceRef, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, local_resource_path FROM queue_items`)
	if err != nil {
		return nil, errors.Wrap(err, "list resource refs")
	}
	defer rows.Close()

	var refs []ResourceRef
	for rows.Next() {
		var (
			ref  ResourceRef
			path sql.NullString
		)
		if err := rows.Scan(&ref.ItemID, &path); err != nil {
			return nil, errors.Wrap(err, "scan resource ref")
		}
		ref.Path = path.String
		refs = append(refs, ref)
	}
	return refs, errors.Wrap(rows.Err(), "iterate resource refs")
}
