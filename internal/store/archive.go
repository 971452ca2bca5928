package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/John-Robertt/singsub/internal/model"
)

// OutboundRow is one archived record. Payload holds the full record JSON.
type OutboundRow struct {
	bun.BaseModel `bun:"table:outbounds,alias:o"`

	ID         int64     `bun:",pk,autoincrement"`
	RunID      string    `bun:",notnull"`
	Position   int       `bun:",notnull"`
	Type       string    `bun:",notnull"`
	Tag        string    `bun:",notnull"`
	Server     string    `bun:",notnull"`
	ServerPort int       `bun:",notnull"`
	Payload    string    `bun:"type:jsonb,notnull"`
	CreatedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// Archive appends every run's records to Postgres.
type Archive struct {
	db *bun.DB
}

// OpenArchive connects lazily; the first query reports connection errors.
func OpenArchive(dsn string) *Archive {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &Archive{db: bun.NewDB(sqldb, pgdialect.New())}
}

func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) InitSchema(ctx context.Context) error {
	if _, err := a.createTableQuery().Exec(ctx); err != nil {
		return storeError("ARCHIVE_SCHEMA_ERROR", "outbounds", "创建归档表失败", err)
	}
	return nil
}

// SaveRun inserts the records of one run in order. An empty list is a no-op.
func (a *Archive) SaveRun(ctx context.Context, runID string, outbounds []model.Outbound) error {
	rows, err := Rows(runID, outbounds)
	if err != nil {
		return storeError("ARCHIVE_ENCODE_ERROR", "outbounds", "归档记录编码失败", err)
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := a.insertQuery(rows).Exec(ctx); err != nil {
		return storeError("ARCHIVE_INSERT_ERROR", "outbounds", "写入归档记录失败", err)
	}
	return nil
}

// Rows converts records to archive rows, numbering positions from 0.
func Rows(runID string, outbounds []model.Outbound) ([]OutboundRow, error) {
	rows := make([]OutboundRow, 0, len(outbounds))
	for i, o := range outbounds {
		payload, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		rows = append(rows, OutboundRow{
			RunID:      runID,
			Position:   i,
			Type:       o.Type,
			Tag:        o.Tag,
			Server:     o.Server,
			ServerPort: o.ServerPort,
			Payload:    string(payload),
		})
	}
	return rows, nil
}

func (a *Archive) createTableQuery() *bun.CreateTableQuery {
	return a.db.NewCreateTable().Model((*OutboundRow)(nil)).IfNotExists()
}

func (a *Archive) insertQuery(rows []OutboundRow) *bun.InsertQuery {
	return a.db.NewInsert().Model(&rows)
}
