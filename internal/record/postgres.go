package record

import (
    "context"
    "database/sql"
    "encoding/json"
    "fmt"
    "strings"
    "time"

    _ "github.com/lib/pq"
)

const schemaMatches = `CREATE TABLE IF NOT EXISTS omok_matches (
    match_id     TEXT PRIMARY KEY,
    room_id      TEXT NOT NULL,
    room_name    TEXT NOT NULL,
    round        INTEGER NOT NULL,
    black_name   TEXT NOT NULL,
    white_name   TEXT NOT NULL,
    winner       TEXT NOT NULL,
    winner_name  TEXT NOT NULL DEFAULT '',
    reason       TEXT NOT NULL,
    moves        JSONB NOT NULL,
    chat         JSONB NOT NULL,
    move_count   INTEGER NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    ended_at     TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT NOT NULL
)`

// Repository stores finished matches in postgres.
type Repository struct {
    db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
    if strings.TrimSpace(databaseURL) == "" {
        return nil, fmt.Errorf("DATABASE_URL is required")
    }
    db, err := sql.Open("postgres", databaseURL)
    if err != nil {
        return nil, err
    }
    db.SetMaxOpenConns(16)
    db.SetMaxIdleConns(8)
    db.SetConnMaxLifetime(30 * time.Minute)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
    if r == nil || r.db == nil { return nil }
    return r.db.Close()
}

// EnsureSchema creates the matches table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
    _, err := r.db.ExecContext(ctx, schemaMatches)
    return err
}

// Record upserts a finished match. Retried deliveries of the same id overwrite.
func (r *Repository) Record(ctx context.Context, m MatchRecord) error {
    if r == nil || r.db == nil {
        return nil
    }
    movesRaw, err := json.Marshal(m.Moves)
    if err != nil { return err }
    chatRaw, err := json.Marshal(m.Chat)
    if err != nil { return err }

    q := `INSERT INTO omok_matches (
        match_id, room_id, room_name, round,
        black_name, white_name, winner, winner_name, reason,
        moves, chat, move_count,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
      ) ON CONFLICT (match_id) DO UPDATE SET
        room_id=EXCLUDED.room_id,
        room_name=EXCLUDED.room_name,
        round=EXCLUDED.round,
        black_name=EXCLUDED.black_name,
        white_name=EXCLUDED.white_name,
        winner=EXCLUDED.winner,
        winner_name=EXCLUDED.winner_name,
        reason=EXCLUDED.reason,
        moves=EXCLUDED.moves,
        chat=EXCLUDED.chat,
        move_count=EXCLUDED.move_count,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

    _, err = r.db.ExecContext(ctx, q,
        m.ID, m.RoomID, m.RoomName, m.Round,
        m.Black, m.White, m.Winner, m.WinnerNickname, m.Reason,
        string(movesRaw), string(chatRaw), len(m.Moves),
        m.StartedAt, m.EndedAt, m.DurationMS,
    )
    return err
}

// Recent returns the newest matches first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]MatchRecord, error) {
    if limit <= 0 { limit = 20 }
    rows, err := r.db.QueryContext(ctx, `SELECT
        match_id, room_id, room_name, round, black_name, white_name,
        winner, winner_name, reason, moves, chat, started_at, ended_at, duration_ms
      FROM omok_matches ORDER BY ended_at DESC LIMIT $1`, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var out []MatchRecord
    for rows.Next() {
        var m MatchRecord
        var movesRaw, chatRaw []byte
        if err := rows.Scan(
            &m.ID, &m.RoomID, &m.RoomName, &m.Round, &m.Black, &m.White,
            &m.Winner, &m.WinnerNickname, &m.Reason, &movesRaw, &chatRaw,
            &m.StartedAt, &m.EndedAt, &m.DurationMS,
        ); err != nil {
            return nil, err
        }
        if err := json.Unmarshal(movesRaw, &m.Moves); err != nil {
            return nil, fmt.Errorf("decode moves %s: %w", m.ID, err)
        }
        if err := json.Unmarshal(chatRaw, &m.Chat); err != nil {
            return nil, fmt.Errorf("decode chat %s: %w", m.ID, err)
        }
        out = append(out, m)
    }
    return out, rows.Err()
}
