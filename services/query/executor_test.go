package query

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"math/big"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"hdbinsights/db"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTable = "resale_data_2017_to_2025"

func newTestExecutor(t *testing.T, rows int) *Executor {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hdb.sqlite")
	seed, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	_, err = seed.Exec(`CREATE TABLE resale_data_2017_to_2025 (
		month TEXT, town TEXT, flat_type TEXT, floor_area_sqm REAL, resale_price REAL
	)`)
	require.NoError(t, err)

	towns := []string{"ANG MO KIO", "BEDOK", "TAMPINES", "WOODLANDS"}
	tx, err := seed.Begin()
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		_, err = tx.Exec(`INSERT INTO resale_data_2017_to_2025 VALUES (?, ?, ?, ?, ?)`,
			"2024-01", towns[i%len(towns)], "4 ROOM", 90.0+float64(i%10), 400000.0+float64(i))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	require.NoError(t, seed.Close())

	source, err := db.NewDataSource("sqlite", path)
	require.NoError(t, err)

	return NewExecutor(source, testTable, DefaultMaxRows, zerolog.Nop())
}

type failingSource struct {
	opened int
}

func (f *failingSource) Open(ctx context.Context) (*sql.DB, error) {
	f.opened++
	return nil, errors.New("should not be opened")
}

func (f *failingSource) Engine() db.Engine { return db.EngineSQLite }

func TestExecuteEmptyQueryNeverOpensConnection(t *testing.T) {
	source := &failingSource{}
	executor := NewExecutor(source, testTable, DefaultMaxRows, zerolog.Nop())

	for _, sqlText := range []string{"", "   ", "\n\t", "-- just a comment", ";;"} {
		t.Run(sqlText, func(t *testing.T) {
			_, err := executor.Execute(context.Background(), sqlText)
			assert.ErrorIs(t, err, ErrEmptyQuery)

			res := executor.Run(context.Background(), sqlText)
			assert.Nil(t, res.ResultDF)
			assert.Equal(t, "No SQL query provided", res.Error)
		})
	}

	assert.Zero(t, source.opened)
}

func TestExecuteCount(t *testing.T) {
	executor := newTestExecutor(t, 25)

	result, err := executor.Execute(context.Background(), "SELECT COUNT(*) FROM resale_data_2017_to_2025")
	require.NoError(t, err)

	assert.Equal(t, []string{"COUNT(*)"}, result.Columns)
	require.Len(t, result.Rows, 1)
	assert.EqualValues(t, 25, result.Rows[0][0])
	assert.False(t, result.Truncated)
}

func TestExecuteTruncatesAtRowCap(t *testing.T) {
	executor := newTestExecutor(t, 1200)

	result, err := executor.Execute(context.Background(), "SELECT town, resale_price FROM resale_data_2017_to_2025 ORDER BY resale_price")
	require.NoError(t, err)

	assert.Len(t, result.Rows, DefaultMaxRows)
	assert.True(t, result.Truncated)
	assert.InDelta(t, 400000.0, result.Rows[0][1], 1e-9)
}

func TestExecuteRowCapProperty(t *testing.T) {
	executor := newTestExecutor(t, 0)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("row count never exceeds the cap", prop.ForAll(
		func(n int) bool {
			result, err := executor.Execute(context.Background(), recursiveSeq(n))
			if err != nil {
				return false
			}
			want := n
			if want > DefaultMaxRows {
				want = DefaultMaxRows
			}
			return len(result.Rows) <= DefaultMaxRows && len(result.Rows) == want && result.Truncated == (n > DefaultMaxRows)
		},
		gen.IntRange(1, 3000),
	))

	properties.TestingRun(t)
}

func recursiveSeq(n int) string {
	return "WITH RECURSIVE seq(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM seq WHERE x < " +
		strconv.Itoa(n) + ") SELECT x FROM seq"
}

func TestExecuteDuplicateColumns(t *testing.T) {
	executor := newTestExecutor(t, 2)

	result, err := executor.Execute(context.Background(),
		"SELECT resale_price AS price, floor_area_sqm AS price FROM resale_data_2017_to_2025 LIMIT 1")
	require.NoError(t, err)

	assert.Equal(t, []string{"price", "price_2"}, result.Columns)
}

func TestExecuteRejectsWrites(t *testing.T) {
	executor := newTestExecutor(t, 1)

	tests := []string{
		"DELETE FROM resale_data_2017_to_2025",
		"DROP TABLE resale_data_2017_to_2025",
		"SELECT 1; DELETE FROM resale_data_2017_to_2025",
	}

	for _, sqlText := range tests {
		t.Run(sqlText, func(t *testing.T) {
			_, err := executor.Execute(context.Background(), sqlText)
			assert.ErrorIs(t, err, ErrNotReadOnly)

			res := executor.Run(context.Background(), sqlText)
			assert.Nil(t, res.ResultDF)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestRunReportsExecutionErrors(t *testing.T) {
	executor := newTestExecutor(t, 1)

	res := executor.Run(context.Background(), "SELECT * FROM missing_table")
	assert.Nil(t, res.ResultDF)
	assert.Contains(t, res.Error, "Error executing SQL query:")
	assert.Contains(t, res.Error, "missing_table")
}

func TestUnknownColumnHint(t *testing.T) {
	executor := newTestExecutor(t, 1)

	_, err := executor.Execute(context.Background(), "SELECT price FROM resale_data_2017_to_2025")
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Hint, "Available columns: month, town, flat_type, floor_area_sqm, resale_price")
	assert.Contains(t, execErr.Hint, "Did you mean: resale_price")
}

func TestNormalizeValue(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bytes", []byte("BEDOK"), "BEDOK"},
		{"nan", math.NaN(), nil},
		{"inf", math.Inf(1), nil},
		{"float32", float32(1.5), 1.5},
		{"small big int", big.NewInt(42), int64(42)},
		{"huge big int", huge, "123456789012345678901234567890"},
		{"time", ts, "2024-03-01T00:00:00Z"},
		{"int", int64(7), int64(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeValue(tt.in))
		})
	}
}

func TestExecuteQuotedSeparators(t *testing.T) {
	executor := newTestExecutor(t, 8)

	tests := []struct {
		name string
		sql  string
		rows int
	}{
		{name: "semicolon in literal", sql: "SELECT town FROM resale_data_2017_to_2025 WHERE town = 'A;B'", rows: 0},
		{name: "comment marker in literal", sql: "SELECT '--' AS marker, town FROM resale_data_2017_to_2025 WHERE town = 'BEDOK'", rows: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := executor.Execute(context.Background(), tt.sql)
			require.NoError(t, err)
			assert.Len(t, result.Rows, tt.rows)
			if tt.rows > 0 {
				assert.Equal(t, "--", result.Rows[0][0])
			}
		})
	}
}
