// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/ichi/internal/cache"
)

// InsertGameActions persists a batch of action records in a single transaction.
// Game rows are created on first sight and finalized when a game_end action arrives.
// Re-delivered records are ignored.
func InsertGameActions(ctx context.Context, db TxBeginner, records []cache.GameActionRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := beginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertGameActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertGameActionTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx insert game actions: %w", err)
	}
	return nil
}

// MarkGameAbandoned flags a game as abandoned if it is still in progress.
func MarkGameAbandoned(ctx context.Context, db TxBeginner, gameID uuid.UUID) error {
	return beginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE games
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		_, e := tx.Exec(ctx, q, gameID)
		return e
	})
}

// Store adapts a pool to the historian's sink.
type Store struct {
	DB TxBeginner
}

func (s Store) InsertGameActions(ctx context.Context, records []cache.GameActionRecord) error {
	return InsertGameActions(ctx, s.DB, records)
}

func (s Store) MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) error {
	return MarkGameAbandoned(ctx, s.DB, gameID)
}

func insertGameActionTx(ctx context.Context, tx pgx.Tx, rec cache.GameActionRecord) error {
	upsertGameQ := `
		INSERT INTO games (id, status, start_time)
		VALUES ($1, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertGameQ, rec.GameID); err != nil {
		return err
	}

	jsonPayload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	actionInsertQ := `
		INSERT INTO game_actions (
			game_id, action_index, turn_version, actor, action_type, action_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (game_id, action_index) DO NOTHING
	`
	_, err = tx.Exec(ctx, actionInsertQ,
		rec.GameID, rec.ActionIndex, rec.TurnVersion, rec.Actor, rec.ActionType, jsonPayload,
		time.UnixMilli(rec.Timestamp),
	)
	if err != nil {
		return err
	}

	if rec.ActionType == cache.EndGameAction {
		finalizeQ := `
			UPDATE games
			SET status = 'completed', winner = $2, end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.GameID, rec.Actor); err != nil {
			return err
		}
	}
	return nil
}
