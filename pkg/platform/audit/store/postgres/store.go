package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	audit "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/masking"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/sentinel"
)

// Store implements audit.Store on the append-only audit_records table.
// The table has no UPDATE or DELETE path in this package.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL audit store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectColumns = `
	id, actor_id, actor_role, action, entity_type, entity_id,
	payload_snapshot, source_address, user_agent, client_platform,
	request_id, outcome, failure_reason, occurred_at`

// Append inserts a record. Replaying the same ID is ignored.
func (s *Store) Append(ctx context.Context, record audit.Record) error {
	payload, err := json.Marshal(record.PayloadSnapshot)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_records (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.pool.Exec(ctx, query,
		record.ID,
		record.ActorID,
		record.ActorRole,
		string(record.Action),
		record.EntityType,
		record.EntityID,
		json.RawMessage(payload),
		record.SourceAddress,
		record.UserAgent,
		record.ClientPlatform,
		record.RequestID,
		string(record.Outcome),
		record.FailureReason,
		record.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Get returns a single record by ID.
func (s *Store) Get(ctx context.Context, id string) (audit.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM audit_records WHERE id = $1`, id)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Record{}, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return audit.Record{}, fmt.Errorf("get audit record: %w", err)
	}
	return record, nil
}

// List returns one page of filtered records and the filtered total.
func (s *Store) List(ctx context.Context, filter audit.Filter, page audit.Page) ([]audit.Record, int, error) {
	where, args := whereClause(filter)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM audit_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	direction := "DESC"
	if page.Sort == audit.SortAsc {
		direction = "ASC"
	}
	n := len(args)
	query := `SELECT ` + selectColumns + ` FROM audit_records` + where +
		` ORDER BY occurred_at ` + direction + `, id ` + direction +
		` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, page.Limit, page.Offset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	records := []audit.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, total, nil
}

func whereClause(filter audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, column+" = $"+strconv.Itoa(len(args)))
	}
	add("actor_id", filter.ActorID)
	add("actor_role", filter.ActorRole)
	add("entity_type", filter.EntityType)
	add("action", string(filter.Action))
	add("outcome", string(filter.Outcome))

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRecord(row pgx.Row) (audit.Record, error) {
	var (
		r       audit.Record
		action  string
		outcome string
		payload []byte
	)
	err := row.Scan(
		&r.ID,
		&r.ActorID,
		&r.ActorRole,
		&action,
		&r.EntityType,
		&r.EntityID,
		&payload,
		&r.SourceAddress,
		&r.UserAgent,
		&r.ClientPlatform,
		&r.RequestID,
		&outcome,
		&r.FailureReason,
		&r.OccurredAt,
	)
	if err != nil {
		return audit.Record{}, err
	}
	r.Action = audit.Action(action)
	r.Outcome = audit.Outcome(outcome)
	r.OccurredAt = r.OccurredAt.UTC()
	if len(payload) > 0 {
		v, err := masking.Parse(payload)
		if err != nil {
			return audit.Record{}, fmt.Errorf("decode payload snapshot: %w", err)
		}
		r.PayloadSnapshot = v
	}
	return r, nil
}
