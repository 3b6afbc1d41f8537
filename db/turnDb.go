package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"hdbinsights/models"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

func migrationsFS() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

var ErrTurnNotFound = errors.New("turn not found")

type TurnRepository interface {
	CreateTurn(ctx context.Context, turn *models.TurnRecord) error
	GetTurnByID(ctx context.Context, id int) (*models.TurnRecord, error)
	ListTurns(ctx context.Context, limit int) ([]*models.TurnRecord, error)
}

type PostgresTurnRepository struct {
	db *sql.DB
}

func NewPostgresTurnRepository(databaseURL string) (*PostgresTurnRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pingOrClose(db); err != nil {
		return nil, err
	}

	return &PostgresTurnRepository{db: db}, nil
}

func pingOrClose(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func NewTurnRepositoryFromDB(db *sql.DB) *PostgresTurnRepository {
	return &PostgresTurnRepository{db: db}
}

// Migrate applies the embedded turn history migrations.
func (r *PostgresTurnRepository) Migrate(ctx context.Context) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, r.db, migrationsFS())
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run turn migrations: %w", err)
	}
	return nil
}

func (r *PostgresTurnRepository) CreateTurn(ctx context.Context, turn *models.TurnRecord) error {
	query := `
		INSERT INTO hdbinsights.turns (question, insight, sql_queries, row_count, chart_id, round_trips, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, createdAt`

	row := r.db.QueryRowContext(ctx, query,
		turn.Question, turn.Insight, pq.Array(turn.SQLQueries), turn.RowCount,
		turn.ChartID, turn.RoundTrips, turn.DurationMs)

	if err := row.Scan(&turn.ID, &turn.CreatedAt); err != nil {
		return fmt.Errorf("failed to create turn: %w", err)
	}

	return nil
}

func (r *PostgresTurnRepository) GetTurnByID(ctx context.Context, id int) (*models.TurnRecord, error) {
	query := `
		SELECT id, question, insight, sql_queries, row_count, chart_id, round_trips, duration_ms, createdAt
		FROM hdbinsights.turns
		WHERE id = $1`

	turn, err := scanTurn(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("turn with id %d: %w", id, ErrTurnNotFound)
		}
		return nil, fmt.Errorf("failed to get turn: %w", err)
	}

	return turn, nil
}

func (r *PostgresTurnRepository) ListTurns(ctx context.Context, limit int) ([]*models.TurnRecord, error) {
	query := `
		SELECT id, question, insight, sql_queries, row_count, chart_id, round_trips, duration_ms, createdAt
		FROM hdbinsights.turns
		ORDER BY createdAt DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.TurnRecord
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	return turns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (*models.TurnRecord, error) {
	turn := &models.TurnRecord{}
	var chartID sql.NullString

	err := row.Scan(&turn.ID, &turn.Question, &turn.Insight, pq.Array(&turn.SQLQueries),
		&turn.RowCount, &chartID, &turn.RoundTrips, &turn.DurationMs, &turn.CreatedAt)
	if err != nil {
		return nil, err
	}

	if chartID.Valid {
		turn.ChartID = &chartID.String
	}

	return turn, nil
}

func (r *PostgresTurnRepository) Close() error {
	return r.db.Close()
}
