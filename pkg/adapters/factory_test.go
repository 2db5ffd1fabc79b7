package adapters_test

import (
	"context"
	"strings"
	"testing"

	"github.com/ruslano69/tdtp-steps/pkg/adapters"
	_ "github.com/ruslano69/tdtp-steps/pkg/adapters/mssql"    // Register mssql
	_ "github.com/ruslano69/tdtp-steps/pkg/adapters/mysql"    // Register mysql
	_ "github.com/ruslano69/tdtp-steps/pkg/adapters/postgres" // Register postgres
	_ "github.com/ruslano69/tdtp-steps/pkg/adapters/sqlite"   // Register sqlite
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

func newSQLite(t *testing.T) adapters.Adapter {
	t.Helper()
	ctx := context.Background()

	adapter, err := adapters.New(ctx, adapters.Config{Type: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to create SQLite adapter: %v", err)
	}
	t.Cleanup(func() { adapter.Close(ctx) })
	return adapter
}

// TestFactory_Registration проверяет регистрацию всех адаптеров
func TestFactory_Registration(t *testing.T) {
	want := []string{"mssql", "mysql", "postgres", "sqlite"}
	got := adapters.GetRegisteredTypes()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("GetRegisteredTypes() = %v, want %v", got, want)
	}
}

// TestFactory_UnknownAdapter проверяет обработку неизвестного типа адаптера
func TestFactory_UnknownAdapter(t *testing.T) {
	ctx := context.Background()

	for _, dbType := range []string{"unknown_db", ""} {
		_, err := adapters.New(ctx, adapters.Config{Type: dbType, DSN: "x"})
		if err == nil {
			t.Fatalf("New(%q) error = nil, want error", dbType)
		}
		if !strings.Contains(err.Error(), "unknown database type") {
			t.Errorf("New(%q) error = %q, want 'unknown database type'", dbType, err.Error())
		}
	}
}

// TestFactory_SQLiteWorkflow проверяет чтение метаданных и транзакции через фабрику
func TestFactory_SQLiteWorkflow(t *testing.T) {
	ctx := context.Background()
	adapter := newSQLite(t)

	if got := adapter.GetDatabaseType(); got != "sqlite" {
		t.Errorf("GetDatabaseType() = %q, want sqlite", got)
	}

	tables, err := adapter.GetTableNames(ctx)
	if err != nil {
		t.Fatalf("GetTableNames failed: %v", err)
	}
	if len(tables) != 0 {
		t.Errorf("Expected 0 tables, got %d", len(tables))
	}

	tx, err := adapter.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if _, err := tx.Exec(ctx, "CREATE TABLE invoices (id INTEGER PRIMARY KEY, name TEXT, amount DECIMAL(18,2), issued DATE)"); err != nil {
		t.Fatalf("CREATE TABLE failed: %v", err)
	}
	n, err := tx.Exec(ctx, "INSERT INTO invoices (name, amount) VALUES ('a', 1), ('b', 2)")
	if err != nil {
		t.Fatalf("INSERT failed: %v", err)
	}
	if n != 2 {
		t.Errorf("rows affected = %d, want 2", n)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	exists, err := adapter.TableExists(ctx, "invoices")
	if err != nil || !exists {
		t.Fatalf("TableExists() = %v, %v; want true", exists, err)
	}

	cols, err := adapter.GetTableColumns(ctx, "invoices")
	if err != nil {
		t.Fatalf("GetTableColumns failed: %v", err)
	}
	if len(cols) != 4 {
		t.Fatalf("columns = %d, want 4", len(cols))
	}

	want := []struct {
		name string
		dt   schema.DataType
		pk   bool
	}{
		{"id", schema.TypeAmount, true},
		{"name", schema.TypeAlphanumeric, false},
		{"amount", schema.TypeAmount, false},
		{"issued", schema.TypeDate, false},
	}
	for i, w := range want {
		if cols[i].Name != w.name || cols[i].DataType() != w.dt || cols[i].PrimaryKey != w.pk {
			t.Errorf("column %d = %+v (%s), want %s %s pk=%v", i, cols[i], cols[i].DataType(), w.name, w.dt, w.pk)
		}
	}
}

// TestFactory_Rollback проверяет откат транзакции
func TestFactory_Rollback(t *testing.T) {
	ctx := context.Background()
	adapter := newSQLite(t)

	tx, err := adapter.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if _, err := tx.Exec(ctx, "CREATE TABLE scratch (v TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE failed: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	exists, err := adapter.TableExists(ctx, "scratch")
	if err != nil {
		t.Fatalf("TableExists failed: %v", err)
	}
	if exists {
		t.Error("table should not exist after rollback")
	}
}

func TestColumnType(t *testing.T) {
	adapter := newSQLite(t)

	for _, dt := range []schema.DataType{schema.TypeAlphanumeric, schema.TypeAmount, schema.TypeDate} {
		sqlType := adapter.ColumnType(dt)
		if got := schema.NormalizeType(sqlType); got != dt {
			t.Errorf("NormalizeType(ColumnType(%s)) = %s, want %s", dt, got, dt)
		}
	}
}
