// Package store persists the download queue in sqlite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/jmagar/cloudie-cli/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrTaskNotFound is returned for unknown task ids.
var ErrTaskNotFound = errors.New("download task not found")

// Store is the sqlite-backed task table.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, log); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

func migrate(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		log.Info().Int64("version", r.Source.Version).Dur("took", r.Duration).Msg("migration applied")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertTask records track (and playlist, when not nil) and queues a task
// for the pair. An existing task for the same pair is reset to pending.
func (s *Store) UpsertTask(ctx context.Context, track *model.Track, playlist *model.Playlist) (*model.DownloadTask, error) {
	trackMeta, err := json.Marshal(track)
	if err != nil {
		return nil, fmt.Errorf("marshal track %d: %w", track.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO LocalTracks (trackId, meta) VALUES (?, ?)
		 ON CONFLICT (trackId) DO UPDATE SET meta = excluded.meta`,
		track.ID, string(trackMeta)); err != nil {
		return nil, fmt.Errorf("upsert track %d: %w", track.ID, err)
	}

	playlistID := model.LikedPlaylistID
	if playlist != nil {
		playlistID = fmt.Sprint(playlist.ID)
		meta, err := json.Marshal(playlistMeta{ID: playlist.ID, Title: playlist.Title, User: playlist.User})
		if err != nil {
			return nil, fmt.Errorf("marshal playlist %d: %w", playlist.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO Playlists (playlistId, meta) VALUES (?, ?)
			 ON CONFLICT (playlistId) DO UPDATE SET meta = excluded.meta`,
			playlistID, string(meta)); err != nil {
			return nil, fmt.Errorf("upsert playlist %s: %w", playlistID, err)
		}
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO DownloadTasks (trackId, playlistId, timestamp, origFileName, path, status, error)
		 VALUES (?, ?, ?, NULL, '', ?, '')
		 ON CONFLICT (trackId, playlistId) DO UPDATE SET
		     timestamp = excluded.timestamp, status = excluded.status, error = ''
		 RETURNING taskId`,
		track.ID, playlistID, time.Now().UnixMilli(), string(model.TaskPending)).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.Task(ctx, id)
}

// playlistMeta is the playlist subset kept alongside tasks; track lists
// are not stored.
type playlistMeta struct {
	ID    int64      `json:"id"`
	Title string     `json:"title"`
	User  model.User `json:"user"`
}

const selectTasks = `
SELECT t.taskId, t.trackId, t.playlistId, t.timestamp, t.origFileName, t.path, t.status, t.error,
       lt.meta, p.meta
FROM DownloadTasks t
JOIN LocalTracks lt ON lt.trackId = t.trackId
LEFT JOIN Playlists p ON p.playlistId = t.playlistId`

// Task returns one task by id.
func (s *Store) Task(ctx context.Context, id int64) (*model.DownloadTask, error) {
	rows, err := s.db.QueryContext(ctx, selectTasks+` WHERE t.taskId = ?`, id)
	if err != nil {
		return nil, err
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("task %d: %w", id, ErrTaskNotFound)
	}
	return tasks[0], nil
}

// ListTasks returns every task, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]*model.DownloadTask, error) {
	rows, err := s.db.QueryContext(ctx, selectTasks+` ORDER BY t.timestamp DESC, t.taskId DESC`)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

// TasksWithStatus returns tasks in status, newest first.
func (s *Store) TasksWithStatus(ctx context.Context, status model.TaskStatus) ([]*model.DownloadTask, error) {
	rows, err := s.db.QueryContext(ctx, selectTasks+` WHERE t.status = ? ORDER BY t.timestamp DESC, t.taskId DESC`, string(status))
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

// UpdateTask writes status, path, original file name and error text.
func (s *Store) UpdateTask(ctx context.Context, task *model.DownloadTask) error {
	var orig sql.NullString
	if task.OrigFileName != "" {
		orig = sql.NullString{String: task.OrigFileName, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE DownloadTasks SET status = ?, path = ?, origFileName = ?, error = ? WHERE taskId = ?`,
		string(task.Status), task.Path, orig, task.Error, task.ID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", task.ID, err)
	}
	return expectOne(res, task.ID)
}

// SetStatus changes only the status of a task.
func (s *Store) SetStatus(ctx context.Context, id int64, status model.TaskStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE DownloadTasks SET status = ?, error = '' WHERE taskId = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update task %d: %w", id, err)
	}
	return expectOne(res, id)
}

// ResetActive moves tasks left in getinfo/downloading by an earlier process
// back to pending and returns how many were reset.
func (s *Store) ResetActive(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE DownloadTasks SET status = ? WHERE status IN (?, ?)`,
		string(model.TaskPending), string(model.TaskGetInfo), string(model.TaskDownloading))
	if err != nil {
		return 0, fmt.Errorf("reset active tasks: %w", err)
	}
	return res.RowsAffected()
}

// DeleteTask removes one task.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM DownloadTasks WHERE taskId = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return expectOne(res, id)
}

// DeleteAll removes every task. Track and playlist metadata are kept.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM DownloadTasks`)
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	return res.RowsAffected()
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrTaskNotFound)
	}
	return nil
}

func scanTasks(rows *sql.Rows) ([]*model.DownloadTask, error) {
	defer rows.Close()
	var tasks []*model.DownloadTask
	for rows.Next() {
		var (
			t         model.DownloadTask
			ts        int64
			orig      sql.NullString
			status    string
			trackMeta string
			plMeta    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.TrackID, &t.PlaylistID, &ts, &orig, &t.Path, &status, &t.Error, &trackMeta, &plMeta); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Timestamp = time.UnixMilli(ts)
		t.OrigFileName = orig.String
		t.Status = model.TaskStatus(status)

		var track model.Track
		if err := json.Unmarshal([]byte(trackMeta), &track); err != nil {
			return nil, fmt.Errorf("decode track %d: %w", t.TrackID, err)
		}
		t.Track = &track
		t.Title = track.Title
		t.Artist = track.Artist()

		if plMeta.Valid {
			var pl playlistMeta
			if err := json.Unmarshal([]byte(plMeta.String), &pl); err == nil {
				t.PlaylistName = pl.Title
			}
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}
