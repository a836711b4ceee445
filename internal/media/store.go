package media

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no media item matches the lookup.
var ErrNotFound = errors.New("media item not found")

// ErrBadGameDate is returned for game dates not in YYYY-MM-DD form.
var ErrBadGameDate = errors.New("game_date must be YYYY-MM-DD")

// Store provides database operations for media items.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a media store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const itemColumns = `m.id, m.team_id, m.uploader_user_id, m.media_type,
	m.storage_type, m.title, coalesce(m.description, ''), m.game_date,
	coalesce(m.file_path, ''), coalesce(m.external_url, ''),
	coalesce(m.thumbnail_url, ''), coalesce(m.mime_type, ''),
	coalesce(m.file_size, 0), m.created_at`

func scanItem(row pgx.Row, extra ...any) (*Item, error) {
	it := &Item{}
	dest := []any{
		&it.ID, &it.TeamID, &it.UploaderUserID, &it.MediaType,
		&it.StorageType, &it.Title, &it.Description, &it.GameDate,
		&it.FilePath, &it.ExternalURL, &it.ThumbnailURL, &it.MimeType,
		&it.FileSize, &it.CreatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return it, nil
}

// Create inserts the item and fills in its id and creation time.
func (s *Store) Create(ctx context.Context, it *Item) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO media_items
		   (team_id, uploader_user_id, media_type, storage_type, title,
		    description, game_date, file_path, external_url, thumbnail_url,
		    mime_type, file_size)
		 VALUES ($1, $2, $3, $4, $5, nullif($6, ''), $7, nullif($8, ''),
		         nullif($9, ''), nullif($10, ''), nullif($11, ''), nullif($12, 0))
		 RETURNING id, created_at`,
		it.TeamID, it.UploaderUserID, it.MediaType, it.StorageType, it.Title,
		it.Description, it.GameDate, it.FilePath, it.ExternalURL,
		it.ThumbnailURL, it.MimeType, it.FileSize,
	).Scan(&it.ID, &it.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert media item: %w", err)
	}
	return nil
}

// List returns a team's items newest first, with uploader display names.
func (s *Store) List(ctx context.Context, teamID string) ([]Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+`, u.display_name
		 FROM media_items m
		 JOIN users u ON u.id = m.uploader_user_id
		 WHERE m.team_id = $1
		 ORDER BY m.created_at DESC, m.id DESC`,
		teamID)
	if err != nil {
		return nil, fmt.Errorf("list media items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var name string
		it, err := scanItem(rows, &name)
		if err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		it.UploaderName = name
		items = append(items, *it)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// Get returns one item by id.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM media_items m WHERE m.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media item: %w", err)
	}
	return it, nil
}

// Delete removes the item row. The caller deletes the backing file.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM media_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete media item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ParseGameDate validates an optional YYYY-MM-DD date. Empty input is fine.
func ParseGameDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, ErrBadGameDate
	}
	return &t, nil
}

// UploadPath builds the storage-relative path for a new upload:
// team-<id>/<timestamp>-<random>.<ext>. The extension comes from the
// original filename, falling back per media type.
func UploadPath(teamID, originalName string, mediaType Type, now time.Time) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	if ext == "" {
		if mediaType == TypePhoto {
			ext = "jpg"
		} else {
			ext = "mp4"
		}
	}

	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate upload name: %w", err)
	}
	name := fmt.Sprintf("%s-%s.%s", now.Format("20060102150405"), hex.EncodeToString(b), ext)
	return fmt.Sprintf("team-%s/%s", teamID, name), nil
}

// TitleFromFilename derives a default title from an uploaded filename.
func TitleFromFilename(originalName string) string {
	base := filepath.Base(originalName)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(title) == "" {
		return "Team upload"
	}
	return title
}
