package adapters

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLTx - реализация Tx поверх database/sql
type SQLTx struct {
	tx *sql.Tx
}

// BeginSQLTx открывает транзакцию database/sql
func BeginSQLTx(ctx context.Context, db *sql.DB) (Tx, error) {
	if db == nil {
		return nil, fmt.Errorf("adapter not connected")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &SQLTx{tx: tx}, nil
}

func (t *SQLTx) Exec(ctx context.Context, query string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// не все драйверы сообщают число строк для DDL
		return 0, nil
	}
	return n, nil
}

func (t *SQLTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *SQLTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}

// ScanColumns читает строки (name, type, is_primary) в []ColumnInfo
func ScanColumns(rows *sql.Rows) ([]ColumnInfo, error) {
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.SQLType, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return cols, nil
}

// ScanNames читает строки с одним строковым полем
func ScanNames(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return names, nil
}
