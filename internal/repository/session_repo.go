package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/liliang-cn/search4all/internal/domain"
)

// historySuffix distinguishes a session's history key from its record key
const historySuffix = "_history"

// SessionRepository handles session record and history persistence
type SessionRepository struct {
	kv       *KVStore
	maxTurns int
}

// NewSessionRepository creates a new session repository. maxTurns caps the
// number of turns retained per history.
func NewSessionRepository(kv *KVStore, maxTurns int) *SessionRepository {
	return &SessionRepository{kv: kv, maxTurns: maxTurns}
}

// HistoryKey returns the key a session's history is stored under
func HistoryKey(searchUUID string) string {
	return searchUUID + historySuffix
}

// GetRecord retrieves the cached record for a session
func (r *SessionRepository) GetRecord(ctx context.Context, searchUUID string) (*domain.SessionRecord, error) {
	raw, err := r.kv.Get(ctx, searchUUID)
	if err != nil {
		return nil, err
	}

	record := &domain.SessionRecord{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, fmt.Errorf("failed to decode session record %s: %w", searchUUID, err)
	}
	return record, nil
}

// PutRecord overwrites the cached record for a session
func (r *SessionRepository) PutRecord(ctx context.Context, searchUUID string, record *domain.SessionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.kv.Put(ctx, searchUUID, raw)
}

// GetHistory retrieves the turns of a session, oldest first
func (r *SessionRepository) GetHistory(ctx context.Context, searchUUID string) ([]domain.Turn, error) {
	raw, err := r.kv.Get(ctx, HistoryKey(searchUUID))
	if err != nil {
		return nil, err
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history %s: %w", searchUUID, err)
	}

	// entries that no longer decode are skipped, not fatal
	turns := make([]domain.Turn, 0, len(entries))
	for _, entry := range entries {
		var turn domain.Turn
		if err := json.Unmarshal(entry, &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	if r.maxTurns > 0 && len(turns) > r.maxTurns {
		turns = turns[len(turns)-r.maxTurns:]
	}
	return turns, nil
}

// AppendTurn adds a turn to a session's history, evicting the oldest turns
// beyond the retention window
func (r *SessionRepository) AppendTurn(ctx context.Context, searchUUID string, turn domain.Turn) error {
	raw, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	return r.kv.Append(ctx, HistoryKey(searchUUID), raw, r.maxTurns)
}

// Delete removes both the record and the history of a session
func (r *SessionRepository) Delete(ctx context.Context, searchUUID string) error {
	return r.kv.Delete(ctx, searchUUID, HistoryKey(searchUUID))
}
