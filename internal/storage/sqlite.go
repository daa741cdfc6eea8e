// internal/storage/sqlite.go
//
// SQLite 版本的 Backend：ledger 資料表中每個帳號一列，
// doc 欄位存放與 JSON 檔相同格式的 Entry，兩種後端可以互相轉換。
// Save 在單一交易內清空並重寫整張表，失敗時舊資料保持不變。
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite 為以 SQLite 資料庫保存帳本的 Backend。
type SQLite struct {
	db *sql.DB
}

// OpenSQLite 開啟（或建立）dsn 指向的資料庫並執行 migrations。
// 只保留一條連線：":memory:" 每條連線都是獨立的資料庫。
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load 讀出所有帳號；資料表為空時回傳空快照。
func (s *SQLite) Load(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, doc FROM ledger`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("%w: ledger[%s]: %v", ErrMalformed, id, err)
		}
		snap[id] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger rows: %w", err)
	}
	return snap, nil
}

// Save 以單一交易取代整張表。
func (s *SQLite) Save(ctx context.Context, snap Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM ledger`); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}
	for id, e := range snap {
		doc, mErr := json.Marshal(e)
		if mErr != nil {
			err = fmt.Errorf("encode ledger[%s]: %w", id, mErr)
			return err
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO ledger (id, doc) VALUES (?, ?)`, id, doc); err != nil {
			return fmt.Errorf("failed to write ledger[%s]: %w", id, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}
