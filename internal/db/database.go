package db

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"time"

	"comix-sync/internal/config"
	"comix-sync/internal/domain"
	"comix-sync/internal/logger"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const sessionRowID = "comix"

// Handler is the persistence collaborator: chapter cache, session cookie
// store and the title library, all backed by one SQLite file. Cached
// chapters additionally live in an in-memory map so repeat lookups skip
// the database entirely.
type Handler struct {
	log zerolog.Logger
	cfg *config.AppConfig

	ctx     context.Context
	cancel  context.CancelFunc
	handler *sql.DB

	chapters *xsync.MapOf[string, domain.CacheEntry]
}

func NewHandler(log logger.Logger, cfg *config.AppConfig) *Handler {
	h := &Handler{
		log:      log.With().Str("module", "database").Logger(),
		cfg:      cfg,
		chapters: xsync.NewMapOf[string, domain.CacheEntry](),
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	return h
}

func (h *Handler) Open() error {
	h.log.Trace().Msg("trying to open SQLite database")
	db, err := sql.Open("sqlite", h.cfg.Config.DatabasePath)
	if err != nil {
		return err
	}
	h.log.Trace().Msg("successfully opened SQLite database")

	// create tables
	if _, err := db.ExecContext(h.ctx, schema); err != nil {
		return err
	}

	h.handler = db

	h.log.Trace().Msg("successfully created tables")
	return nil
}

func (h *Handler) Close() error {
	h.cancel()

	if h.handler != nil {
		return h.handler.Close()
	}

	return nil
}

// WarmChapterCache preloads the in-memory chapter map from disk.
func (h *Handler) WarmChapterCache() error {
	rows, err := h.handler.QueryContext(h.ctx, `SELECT chapterKey, images, metadata FROM chapter_cache;`)
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var key, imagesJSON, metadataJSON string
		if err := rows.Scan(&key, &imagesJSON, &metadataJSON); err != nil {
			h.log.Error().Err(err).Msg("error scanning chapter row")
			continue
		}

		entry, err := decodeEntry(key, imagesJSON, metadataJSON)
		if err != nil {
			h.log.Error().Err(err).Str("chapter", key).Msg("error decoding cached chapter")
			continue
		}
		h.chapters.Store(key, entry)
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	h.log.Debug().Msgf("loaded %d cached chapters", count)
	return nil
}

// FindChapter returns the cached entry for a chapter key, or nil when the
// chapter has never been scraped.
func (h *Handler) FindChapter(key string) (*domain.CacheEntry, error) {
	if entry, ok := h.chapters.Load(key); ok {
		return &entry, nil
	}

	var imagesJSON, metadataJSON string
	err := h.handler.QueryRowContext(h.ctx,
		`SELECT images, metadata FROM chapter_cache WHERE chapterKey = ?;`, key).
		Scan(&imagesJSON, &metadataJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entry, err := decodeEntry(key, imagesJSON, metadataJSON)
	if err != nil {
		return nil, err
	}

	h.chapters.Store(key, entry)
	return &entry, nil
}

// SaveChapter writes one immutable cache entry. Existing rows are replaced
// only to repair earlier partial writes; chapter image sets never change
// after publish.
func (h *Handler) SaveChapter(key string, images []domain.Image, metadata domain.ChapterMetadata) error {
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return err
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	_, err = h.handler.ExecContext(h.ctx, `
        INSERT INTO chapter_cache (chapterKey, mangaId, provider, chapterId, images, metadata, createdAt)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(chapterKey) DO UPDATE
        SET images = excluded.images, metadata = excluded.metadata;`,
		key, metadata.MangaID, metadata.Provider, metadata.ChapterID,
		string(imagesJSON), string(metadataJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	h.chapters.Store(key, domain.CacheEntry{Key: key, Images: images, Metadata: metadata})
	return nil
}

// LoadSession returns the persisted cookie set, or nil when none was saved.
func (h *Handler) LoadSession() (*domain.SessionState, error) {
	var cookiesJSON string
	var expiresAt sql.NullInt64
	var fetchedAt int64

	err := h.handler.QueryRowContext(h.ctx,
		`SELECT cookies, expiresAt, fetchedAt FROM session_cookies WHERE id = ?;`, sessionRowID).
		Scan(&cookiesJSON, &expiresAt, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := domain.SessionState{
		FetchedAt: time.Unix(fetchedAt, 0),
	}
	if err := json.Unmarshal([]byte(cookiesJSON), &state.Cookies); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0)
		state.ExpiresAt = &t
	}

	return &state, nil
}

func (h *Handler) SaveSession(state *domain.SessionState) error {
	cookiesJSON, err := json.Marshal(state.Cookies)
	if err != nil {
		return err
	}

	var expiresAt sql.NullInt64
	if state.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: state.ExpiresAt.Unix(), Valid: true}
	}

	_, err = h.handler.ExecContext(h.ctx, `
        INSERT INTO session_cookies (id, cookies, cookieString, expiresAt, fetchedAt)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE
        SET cookies = excluded.cookies, cookieString = excluded.cookieString,
            expiresAt = excluded.expiresAt, fetchedAt = excluded.fetchedAt;`,
		sessionRowID, string(cookiesJSON), state.CookieHeader(), expiresAt, state.FetchedAt.Unix())
	return err
}

// UpsertLibrary stores lightweight homepage summaries. The autoUpdate flag
// is left untouched so homepage-only titles never enter the update rotation.
func (h *Handler) UpsertLibrary(summaries []domain.MangaSummary) error {
	for _, m := range summaries {
		_, err := h.handler.ExecContext(h.ctx, `
            INSERT INTO titles (mangaId, title, thumbnail, latestChapter, updatedAt)
            VALUES (?, ?, ?, ?, ?)
            ON CONFLICT(mangaId) DO UPDATE
            SET title = excluded.title, thumbnail = excluded.thumbnail,
                latestChapter = excluded.latestChapter, updatedAt = excluded.updatedAt;`,
			m.ID, m.Title, m.Thumbnail, m.LatestChapter, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveTitleDetails persists a full detail scrape and flags the title for
// auto-updating from then on.
func (h *Handler) SaveTitleDetails(mangaID string, details *domain.MangaDetails) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	_, err = h.handler.ExecContext(h.ctx, `
        INSERT INTO titles (mangaId, title, thumbnail, latestChapter, totalChapters, autoUpdate, details, updatedAt)
        VALUES (?, ?, ?, ?, ?, 1, ?, ?)
        ON CONFLICT(mangaId) DO UPDATE
        SET title = excluded.title, thumbnail = excluded.thumbnail,
            latestChapter = excluded.latestChapter, totalChapters = excluded.totalChapters,
            autoUpdate = 1, details = excluded.details, updatedAt = excluded.updatedAt;`,
		mangaID, details.Title, details.Thumbnail, details.LatestChapter,
		details.TotalChapters, string(detailsJSON), time.Now().UTC().Format(time.RFC3339))
	return err
}

// ListAutoUpdateTitles returns every title flagged for the update rotation.
func (h *Handler) ListAutoUpdateTitles() ([]domain.StoredTitle, error) {
	rows, err := h.handler.QueryContext(h.ctx,
		`SELECT mangaId, title, totalChapters, updatedAt FROM titles WHERE autoUpdate = 1;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []domain.StoredTitle
	for rows.Next() {
		var t domain.StoredTitle
		var updatedAt string
		if err := rows.Scan(&t.MangaID, &t.Title, &t.TotalChapters, &updatedAt); err != nil {
			h.log.Error().Err(err).Msg("error scanning title row")
			continue
		}
		t.AutoUpdate = true
		if parsed, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			t.UpdatedAt = parsed
		}
		titles = append(titles, t)
	}

	return titles, rows.Err()
}

func decodeEntry(key, imagesJSON, metadataJSON string) (domain.CacheEntry, error) {
	entry := domain.CacheEntry{Key: key}
	if err := json.Unmarshal([]byte(imagesJSON), &entry.Images); err != nil {
		return entry, err
	}
	if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
		return entry, err
	}
	return entry, nil
}
