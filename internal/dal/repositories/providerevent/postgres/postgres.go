package postgresrepo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/covacitrees/oms/internal/dal/postgres"
	"github.com/covacitrees/oms/internal/service/models/providerevent"
)

// ProviderEventRepository persists applied provider events. The table carries
// a unique constraint on (provider, provider_transaction_id, status); the
// conflict-ignoring insert turns webhook redelivery into a detectable no-op.
type ProviderEventRepository struct {
	conn postgres.Querier
}

func NewProviderEventRepository(conn postgres.Querier) *ProviderEventRepository {
	return &ProviderEventRepository{
		conn: conn,
	}
}

// Record inserts the event tuple. It reports false when the tuple was
// already recorded by an earlier delivery.
func (r *ProviderEventRepository) Record(ctx context.Context, ev providerevent.ProviderEvent) (bool, error) {
	query, args, err := sq.Insert("payment_events").
		Columns(
			"provider",
			"provider_transaction_id",
			"status",
			"payload",
			"received_at",
		).
		Values(
			ev.Provider.String(),
			ev.ProviderTransactionID,
			string(ev.Status),
			ev.Payload,
			ev.ReceivedAt,
		).
		Suffix("ON CONFLICT (provider, provider_transaction_id, status) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build insert query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to record provider event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
