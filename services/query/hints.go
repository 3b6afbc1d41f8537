package query

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"hdbinsights/db"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
)

const maxSuggestions = 3

var unknownColumnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Referenced column "([^"]+)" not found`),
	regexp.MustCompile(`no such column: ([\w.]+)`),
	regexp.MustCompile(`column "([^"]+)" does not exist`),
	regexp.MustCompile(`Unknown column '([^']+)'`),
}

func unknownColumn(message string) string {
	for _, re := range unknownColumnPatterns {
		if m := re.FindStringSubmatch(message); len(m) > 1 {
			name := m[1]
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			return name
		}
	}
	return ""
}

func (e *Executor) columnHint(ctx context.Context, conn *sql.DB, missing string) string {
	columns, err := e.tableColumns(ctx, conn)
	if err != nil || len(columns) == 0 {
		e.logger.Debug().Err(err).Msg("Could not list table columns for hint")
		return ""
	}

	hint := fmt.Sprintf("Column %q does not exist in %s. Available columns: %s.",
		missing, e.table, strings.Join(columns, ", "))

	if suggestions := suggestColumns(missing, columns); len(suggestions) > 0 {
		hint += " Did you mean: " + strings.Join(suggestions, ", ") + "?"
	}
	return hint
}

func (e *Executor) tableColumns(ctx context.Context, conn *sql.DB) ([]string, error) {
	if e.table == "" {
		return nil, fmt.Errorf("no table configured")
	}

	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", quoteIdent(e.source.Engine(), e.table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return rows.Columns()
}

func quoteIdent(engine db.Engine, name string) string {
	if engine == db.EngineMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// suggestColumns ranks subsequence matches first, then near misspellings.
func suggestColumns(missing string, columns []string) []string {
	ranks := fuzzy.RankFindFold(missing, columns)
	sort.Sort(ranks)
	matches := lo.Map(ranks, func(r fuzzy.Rank, _ int) string { return r.Target })

	target := strings.ToLower(missing)
	type scored struct {
		name     string
		distance int
	}
	near := lo.FilterMap(columns, func(c string, _ int) (scored, bool) {
		d := fuzzy.LevenshteinDistance(target, strings.ToLower(c))
		return scored{name: c, distance: d}, d <= len(target)/2
	})
	sort.SliceStable(near, func(i, j int) bool { return near[i].distance < near[j].distance })

	matches = append(matches, lo.Map(near, func(s scored, _ int) string { return s.name })...)
	matches = lo.Uniq(matches)

	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}
	return matches
}
