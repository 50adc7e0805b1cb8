package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Searcher looks up knowledge-base snippets relevant to a query. The vector
// similarity service itself is an external collaborator; implementations only
// need to return ranked text snippets.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSearcher is a keyword fallback over the knowledge_documents table.
type PostgresSearcher struct {
	pool PgxPool
}

// NewPostgresSearcher initializes a searcher backed by a pgx pool.
func NewPostgresSearcher(pool PgxPool) *PostgresSearcher {
	if pool == nil {
		panic("knowledge: pgx pool required")
	}
	return &PostgresSearcher{pool: pool}
}

// Search returns up to k document snippets containing any query term.
func (s *PostgresSearcher) Search(ctx context.Context, query string, k int) ([]string, error) {
	terms := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(terms) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 2
	}
	sql := `
		SELECT content
		FROM knowledge_documents
		WHERE lower(content) LIKE ANY($1)
		ORDER BY id
		LIMIT $2
	`
	patterns := make([]string, 0, len(terms))
	for _, term := range terms {
		patterns = append(patterns, "%"+term+"%")
	}
	rows, err := s.pool.Query(ctx, sql, patterns, k)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	defer rows.Close()

	var snippets []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("knowledge: scan: %w", err)
		}
		snippets = append(snippets, content)
	}
	return snippets, rows.Err()
}

// StaticSearcher serves fixed snippets, used in tests and local runs.
type StaticSearcher struct {
	Snippets []string
}

func (s *StaticSearcher) Search(_ context.Context, query string, k int) ([]string, error) {
	lowered := strings.ToLower(query)
	var matches []string
	for _, snippet := range s.Snippets {
		if len(matches) >= k {
			break
		}
		if containsAnyField(strings.ToLower(snippet), lowered) {
			matches = append(matches, snippet)
		}
	}
	return matches, nil
}

func containsAnyField(snippet, query string) bool {
	for _, term := range strings.Fields(query) {
		if strings.Contains(snippet, term) {
			return true
		}
	}
	return false
}
