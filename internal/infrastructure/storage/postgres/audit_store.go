package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"audittrail/internal/audit"
	"audittrail/internal/core/apperror"
	"audittrail/pkg/logger"
)

// CompressionAlgo specifies the compression applied to record_value.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultAuditTable is the table audit rows are appended to.
const DefaultAuditTable = "audit_log"

// DefaultCompressThreshold is the snapshot size above which record_value is
// stored zstd-compressed.
const DefaultCompressThreshold = 10 * 1024

var auditColumns = []string{
	"reference_id", "reference_table", "action_type",
	"column_name", "column_old_value", "column_new_value",
	"record_value", "record_value_compressed", "compression_algo",
	"created_date", "created_user",
}

// auditRow is the stored shape of an audit.Record.
type auditRow struct {
	audit.Record
	RecordValueCompressed []byte          `db:"record_value_compressed"`
	CompressionAlgo       CompressionAlgo `db:"compression_algo"`
}

// AuditStore appends and reads audit rows.
type AuditStore struct {
	txManager         *TxManager
	table             string
	ident             string // quoted form of table
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes; 0 disables compression
}

type AuditStoreOption func(*AuditStore)

// WithAuditTable overrides DefaultAuditTable.
func WithAuditTable(table string) AuditStoreOption {
	return func(s *AuditStore) { s.table = table }
}

// WithCompressThreshold overrides DefaultCompressThreshold.
func WithCompressThreshold(bytes int) AuditStoreOption {
	return func(s *AuditStore) { s.compressThreshold = bytes }
}

func NewAuditStore(txManager *TxManager, opts ...AuditStoreOption) (*AuditStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	s := &AuditStore{
		txManager:         txManager,
		table:             DefaultAuditTable,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: DefaultCompressThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.table == "" {
		return nil, apperror.NewValidation("audit table name is empty")
	}
	s.ident = quoteTable(s.table)
	return s, nil
}

// quoteTable quotes a table name, optionally schema-qualified, so that the
// same relation is addressed by DDL and DML regardless of case.
func quoteTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// Table returns the audit table name.
func (s *AuditStore) Table() string { return s.table }

func (s *AuditStore) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Append inserts records in order. Inside an open transaction the inserts run
// under a savepoint, so a failure leaves the enclosing transaction usable.
func (s *AuditStore) Append(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	err := s.txManager.RunInTransactionWithOptions(ctx, SavepointTxOptions(), func(ctx context.Context) error {
		q := s.txManager.GetQuerier(ctx)
		for _, rec := range records {
			sql, args, err := s.insertQuery(rec)
			if err != nil {
				return err
			}
			if _, err := q.Exec(ctx, sql, args...); err != nil {
				return fmt.Errorf("insert audit row for %s/%s: %w", rec.RefTable, rec.RefID, err)
			}
		}
		return nil
	})
	if err != nil {
		return apperror.NewAuditWrite(err).WithDetail("records", len(records))
	}

	logger.Debug(ctx, "audit records appended", "table", s.table, "count", len(records))
	return nil
}

func (s *AuditStore) insertQuery(rec audit.Record) (string, []any, error) {
	value := rec.RecordValue
	var compressed []byte
	algo := CompressionNone
	if value != nil && s.compressThreshold > 0 && len(*value) > s.compressThreshold {
		compressed = s.encoder.EncodeAll([]byte(*value), nil)
		value = nil
		algo = CompressionZstd
	}

	sql, args, err := s.builder().
		Insert(s.ident).
		Columns(auditColumns...).
		Values(
			rec.RefID, rec.RefTable, string(rec.Action),
			rec.ColumnName, rec.OldValue, rec.NewValue,
			value, compressed, string(algo),
			rec.CreatedAt.UTC(), rec.CreatedUser,
		).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build audit insert: %w", err)
	}
	return sql, args, nil
}

// History returns the newest audit rows for one referenced row, most recent
// first. refTable is matched as stored, i.e. after the naming policy.
func (s *AuditStore) History(ctx context.Context, refTable, refID string, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	sql, args, err := s.builder().
		Select(append([]string{"id"}, auditColumns...)...).
		From(s.ident).
		Where(squirrel.Eq{"reference_table": refTable}).
		Where(squirrel.Eq{"reference_id": refID}).
		OrderBy("created_date DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var rows []auditRow
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, apperror.NewDatabase("query audit history", err)
	}

	records := make([]audit.Record, 0, len(rows))
	for _, row := range rows {
		rec := row.Record
		if row.CompressionAlgo == CompressionZstd && len(row.RecordValueCompressed) > 0 {
			raw, err := s.decoder.DecodeAll(row.RecordValueCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit row %d: %w", rec.ID, err)
			}
			value := string(raw)
			rec.RecordValue = &value
		}
		records = append(records, rec)
	}
	return records, nil
}

// Migrate creates the audit table and its lookup index if missing.
func (s *AuditStore) Migrate(ctx context.Context) error {
	table := s.ident
	parts := strings.Split(s.table, ".")
	index := pgx.Identifier{parts[len(parts)-1] + "_reference_idx"}.Sanitize()

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id                      BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	reference_id            TEXT        NOT NULL,
	reference_table         TEXT        NOT NULL,
	action_type             TEXT        NOT NULL CHECK (action_type IN ('INSERT', 'UPDATE', 'DELETE')),
	column_name             TEXT,
	column_old_value        TEXT,
	column_new_value        TEXT,
	record_value            TEXT,
	record_value_compressed BYTEA,
	compression_algo        TEXT        NOT NULL DEFAULT 'none',
	created_date            TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_user            TEXT
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (reference_table, reference_id, created_date DESC)`, index, table),
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := s.txManager.GetQuerier(ctx)
		for _, stmt := range stmts {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return apperror.NewDatabase("migrate audit table", err)
			}
		}
		logger.Info(ctx, "audit table ready", "table", s.table)
		return nil
	})
}

// Close releases the zstd decoder.
func (s *AuditStore) Close() {
	s.decoder.Close()
	_ = s.encoder.Close()
}
