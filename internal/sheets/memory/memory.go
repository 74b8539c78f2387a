package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"insights/internal/core"
	ports "insights/internal/sheets"
)

var _ ports.ReportExporter = (*Store)(nil)

// Store keeps the latest export of each report in memory.
type Store struct {
	mu      sync.Mutex
	exports map[string][][]any
	count   int
}

func New() *Store {
	return &Store{exports: make(map[string][][]any)}
}

// Export replaces the stored rows for report and returns a synthetic reference.
func (s *Store) Export(_ context.Context, report string, filters core.FilterSet, table *core.ResultTable) (string, error) {
	if table == nil {
		return "", errors.New("nothing to export")
	}
	rows := ports.Rows(report, filters, table)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports[report] = rows
	s.count++
	return fmt.Sprintf("mem:%s:%d", report, s.count), nil
}

// Rows returns the last export of report, header and caption included.
func (s *Store) Rows(report string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.exports[report]
	return rows, ok
}

// Reports lists exported report names.
func (s *Store) Reports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.exports))
	for name := range s.exports {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
