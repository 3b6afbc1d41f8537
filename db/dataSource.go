package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"
)

type Engine string

const (
	EngineDuckDB   Engine = "duckdb"
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgres"
	EngineMySQL    Engine = "mysql"
)

// DataSource opens read-only connections to the resale dataset. Every call to
// Open returns a fresh single-connection handle that the caller must close.
type DataSource interface {
	Open(ctx context.Context) (*sql.DB, error)
	Engine() Engine
}

type SQLDataSource struct {
	engine Engine
	dsn    string
}

func NewDataSource(engine, dsn string) (*SQLDataSource, error) {
	eng := Engine(strings.ToLower(strings.TrimSpace(engine)))
	if eng == "" {
		eng = EngineDuckDB
	}

	switch eng {
	case EngineDuckDB, EngineSQLite, EnginePostgres, EngineMySQL:
	default:
		return nil, fmt.Errorf("unsupported data engine %q", engine)
	}

	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("data source for engine %s is empty", eng)
	}

	return &SQLDataSource{engine: eng, dsn: dsn}, nil
}

func (s *SQLDataSource) Engine() Engine {
	return s.engine
}

func (s *SQLDataSource) Open(ctx context.Context) (*sql.DB, error) {
	driver, connStr := s.connection()

	conn, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s data source: %w", s.engine, err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(0)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping %s data source: %w", s.engine, err)
	}

	return conn, nil
}

func (s *SQLDataSource) connection() (string, string) {
	switch s.engine {
	case EngineSQLite:
		path := strings.TrimPrefix(s.dsn, "file:")
		if i := strings.Index(path, "?"); i >= 0 {
			path = path[:i]
		}
		return "sqlite", "file:" + path + "?mode=ro"
	case EnginePostgres:
		return "postgres", s.dsn
	case EngineMySQL:
		return "mysql", s.dsn
	default:
		if strings.Contains(s.dsn, "?") {
			return "duckdb", s.dsn + "&access_mode=read_only"
		}
		return "duckdb", s.dsn + "?access_mode=read_only"
	}
}
