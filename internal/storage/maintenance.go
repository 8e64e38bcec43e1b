package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PurgeExpired deletes history and history_properties rows older than
// the configured retention window. retention <= 0 means keep forever and
// is a no-op.
func (s *Store) PurgeExpired(ctx context.Context, retention time.Duration) (historyDeleted, propertiesDeleted int64, err error) {
	if retention <= 0 {
		return 0, 0, nil
	}
	cutoff := time.Now().Add(-retention).UnixMilli()

	tag, err := s.Pool.Exec(ctx, `DELETE FROM history WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	historyDeleted = tag.RowsAffected()

	tag, err = s.Pool.Exec(ctx, `DELETE FROM history_properties WHERE ts < $1`, cutoff)
	if err != nil {
		return historyDeleted, 0, err
	}
	propertiesDeleted = tag.RowsAffected()

	s.log.Info().
		Int64("history_deleted", historyDeleted).
		Int64("history_properties_deleted", propertiesDeleted).
		Dur("retention", retention).
		Msg("expired history purged")
	return historyDeleted, propertiesDeleted, nil
}

// asPgError unwraps err to a *pgconn.PgError, if any exists in its chain.
func asPgError(err error, out **pgconn.PgError) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		*out = pgErr
		return true
	}
	return false
}
