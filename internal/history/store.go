// Package history persists finished matches to a SQLite database and
// answers queries about past results.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/gocraft2-project/gocraft2/internal/config"
	"github.com/gocraft2-project/gocraft2/internal/events"
)

// MatchRecord is one finished match as stored on disk.
type MatchRecord struct {
	ID         int64          `json:"id"`
	MatchID    string         `json:"match_id"`
	Map        string         `json:"map"`
	GameLoop   uint32         `json:"game_loop"`
	DurationMS int64          `json:"duration_ms"`
	Aborted    bool           `json:"aborted"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Players    []PlayerRecord `json:"players"`
}

// PlayerRecord is one player's outcome within a recorded match.
type PlayerRecord struct {
	PlayerID uint32 `json:"player_id"`
	Name     string `json:"name"`
	Race     string `json:"race"`
	Outcome  string `json:"outcome"`
}

// PlayerStanding aggregates every outcome recorded under one player name.
type PlayerStanding struct {
	Name   string `json:"name"`
	Played int    `json:"played"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Ties   int    `json:"ties"`
}

// Store records finished matches and serves history queries.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// NewStore opens or creates the history database and migrates its schema.
func NewStore(cfg config.HistoryConfig) (*Store, error) {
	logger := log.With().
		Str("component", "history").
		Str("path", cfg.Path).
		Logger()

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", cfg.Path, err)
	}

	// SQLite allows a single writer. Pinning the pool to one connection
	// serializes the recorder against API queries instead of surfacing
	// SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		logger.Warn().Err(err).Msg("failed to enable WAL mode")
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		logger.Warn().Err(err).Msg("failed to enable foreign keys")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history database ping failed: %w", err)
	}

	s := &Store{db: db, path: cfg.Path, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Msg("history database opened")
	return s, nil
}

// migrate creates the schema.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id TEXT UNIQUE NOT NULL,
			map TEXT NOT NULL,
			game_loop INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			aborted INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS match_players (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id INTEGER NOT NULL,
			player_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			race TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (match_id) REFERENCES matches(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_matches_created_at ON matches(created_at);
		CREATE INDEX IF NOT EXISTS idx_match_players_match ON match_players(match_id);
		CREATE INDEX IF NOT EXISTS idx_match_players_name ON match_players(name);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	s.logger.Debug().Msg("history schema migrated")
	return nil
}

// Attach hooks the store onto the event bus so finished matches are
// recorded without the runner knowing about persistence.
func (s *Store) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventMatchEnded, "history.recorder", s.onMatchEnded)
}

func (s *Store) onMatchEnded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MatchEndedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", event.Payload, event.Type)
	}

	rec := MatchRecord{
		MatchID:    payload.MatchID,
		Map:        payload.Map,
		GameLoop:   payload.GameLoop,
		DurationMS: payload.Duration.Milliseconds(),
		Aborted:    payload.Aborted,
		Error:      payload.Error,
	}
	for _, r := range payload.Results {
		rec.Players = append(rec.Players, PlayerRecord{
			PlayerID: r.PlayerID,
			Name:     r.Name,
			Race:     r.Race,
			Outcome:  r.Outcome,
		})
	}

	if err := s.RecordMatch(rec); err != nil {
		s.logger.Error().Err(err).Str("match_id", rec.MatchID).Msg("failed to record match")
		return err
	}
	return nil
}

// RecordMatch writes one finished match and its per-player outcomes.
func (s *Store) RecordMatch(rec MatchRecord) error {
	return s.transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO matches (match_id, map, game_loop, duration_ms, aborted, error)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.MatchID, rec.Map, rec.GameLoop, rec.DurationMS, rec.Aborted, rec.Error)
		if err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}

		rowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read match row id: %w", err)
		}

		for _, p := range rec.Players {
			_, err := tx.Exec(
				`INSERT INTO match_players (match_id, player_id, name, race, outcome)
				 VALUES (?, ?, ?, ?, ?)`,
				rowID, p.PlayerID, p.Name, p.Race, p.Outcome)
			if err != nil {
				return fmt.Errorf("failed to insert player result: %w", err)
			}
		}

		s.logger.Info().
			Str("match_id", rec.MatchID).
			Str("map", rec.Map).
			Int("players", len(rec.Players)).
			Msg("match recorded")
		return nil
	})
}

// RecentMatches returns up to limit matches, newest first, with their
// player outcomes attached.
func (s *Store) RecentMatches(limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, match_id, map, game_loop, duration_ms, aborted, error, created_at
		 FROM matches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []MatchRecord
	for rows.Next() {
		var rec MatchRecord
		if err := rows.Scan(&rec.ID, &rec.MatchID, &rec.Map, &rec.GameLoop,
			&rec.DurationMS, &rec.Aborted, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range matches {
		players, err := s.matchPlayers(matches[i].ID)
		if err != nil {
			return nil, err
		}
		matches[i].Players = players
	}

	return matches, nil
}

// Match returns a single recorded match by its match id.
func (s *Store) Match(matchID string) (MatchRecord, error) {
	var rec MatchRecord
	err := s.db.QueryRow(
		`SELECT id, match_id, map, game_loop, duration_ms, aborted, error, created_at
		 FROM matches WHERE match_id = ?`, matchID).
		Scan(&rec.ID, &rec.MatchID, &rec.Map, &rec.GameLoop,
			&rec.DurationMS, &rec.Aborted, &rec.Error, &rec.CreatedAt)
	if err != nil {
		return MatchRecord{}, fmt.Errorf("match %s: %w", matchID, err)
	}

	rec.Players, err = s.matchPlayers(rec.ID)
	if err != nil {
		return MatchRecord{}, err
	}
	return rec, nil
}

func (s *Store) matchPlayers(rowID int64) ([]PlayerRecord, error) {
	rows, err := s.db.Query(
		`SELECT player_id, name, race, outcome FROM match_players
		 WHERE match_id = ? ORDER BY player_id`, rowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query match players: %w", err)
	}
	defer rows.Close()

	var players []PlayerRecord
	for rows.Next() {
		var p PlayerRecord
		if err := rows.Scan(&p.PlayerID, &p.Name, &p.Race, &p.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// Standings aggregates win/loss counts per player name across every
// recorded match. Computer opponents count like any other player.
func (s *Store) Standings() ([]PlayerStanding, error) {
	rows, err := s.db.Query(`
		SELECT name,
		       COUNT(*) AS played,
		       SUM(CASE WHEN outcome = 'victory' THEN 1 ELSE 0 END) AS wins,
		       SUM(CASE WHEN outcome = 'defeat' THEN 1 ELSE 0 END) AS losses,
		       SUM(CASE WHEN outcome = 'tie' THEN 1 ELSE 0 END) AS ties
		FROM match_players
		GROUP BY name
		ORDER BY wins DESC, played DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query standings: %w", err)
	}
	defer rows.Close()

	var standings []PlayerStanding
	for rows.Next() {
		var st PlayerStanding
		if err := rows.Scan(&st.Name, &st.Played, &st.Wins, &st.Losses, &st.Ties); err != nil {
			return nil, fmt.Errorf("failed to scan standing row: %w", err)
		}
		standings = append(standings, st)
	}
	return standings, rows.Err()
}

// transaction runs fn on the single writer connection, rolling back on error.
func (s *Store) transaction(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
