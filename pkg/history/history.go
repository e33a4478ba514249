package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Record is one terminal processing outcome. The live tracked-file list stays
// in memory; this table is the durable audit trail of what happened to each
// attempt.
type Record struct {
	bun.BaseModel `bun:"table:processed_files"`

	ID              int       `bun:"id,pk,autoincrement" json:"id"`
	Path            string    `bun:"path,notnull" json:"path"`
	OriginalName    string    `bun:"original_name,notnull" json:"original_name"`
	ResolvedName    string    `bun:"resolved_name" json:"resolved_name,omitempty"`
	IdentifierKind  string    `bun:"identifier_kind" json:"identifier_kind,omitempty"`
	IdentifierValue string    `bun:"identifier_value" json:"identifier_value,omitempty"`
	Status          string    `bun:"status,notnull" json:"status"`
	Error           string    `bun:"error" json:"error,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Config holds the connection knobs for the history database.
type Config struct {
	FilePath          string
	Debug             bool
	ConnectRetryCount int
	ConnectRetryDelay time.Duration
	BusyTimeout       time.Duration
}

type key int

const ctxKey key = 0

// WithLogging enables query logging for queries run with the returned
// context when the database was opened with Debug.
func WithLogging(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey, true)
}

type logQueryHook struct {
	log logger.Logger
}

func (*logQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (qh *logQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	enabled, ok := ctx.Value(ctxKey).(bool)
	if !ok || !enabled {
		return
	}

	qh.log.Debug(event.Query)
}

// Open connects to the SQLite history database and ensures the schema
// exists. WAL mode allows reads concurrent with the writer; busy_timeout
// absorbs short lock contention.
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.FilePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	// print out all queries in debug mode
	if cfg.Debug {
		db.AddQueryHook(&logQueryHook{logger.NewWithLevel("debug")})
	}

	// Retry up to a few times to ensure that the database can connect.
	for i := 0; i < cfg.ConnectRetryCount; i++ {
		_, err = db.Exec("SELECT 1")
		if err != nil {
			time.Sleep(cfg.ConnectRetryDelay)
			continue
		}
		break
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	busyTimeoutMs := cfg.BusyTimeout.Milliseconds()
	_, err = db.Exec("PRAGMA busy_timeout=?", busyTimeoutMs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set busy_timeout")
	}

	_, err = db.NewCreateTable().
		Model((*Record)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create processed_files table")
	}

	return db, nil
}

// Service reads and writes processing history.
type Service struct {
	db *bun.DB
}

// NewService creates a new history Service.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Record appends one terminal outcome.
func (svc *Service) Record(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := svc.db.NewInsert().
		Model(rec).
		Exec(ctx)
	return errors.WithStack(err)
}

// ListRecordsOptions are the options for ListRecords.
type ListRecordsOptions struct {
	Path  string
	Limit int
}

// ListRecords returns outcomes, newest first.
func (svc *Service) ListRecords(ctx context.Context, opts ListRecordsOptions) ([]*Record, error) {
	records := []*Record{}

	q := svc.db.NewSelect().
		Model(&records).
		Order("id DESC")
	if opts.Path != "" {
		q = q.Where("path = ?", opts.Path)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	err := q.Scan(ctx)
	return records, errors.WithStack(err)
}
