// Package memory is an in-process ArchiveWriter used in tests and when no
// spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	ports "potledger/internal/sheets"
)

type Store struct {
	mu    sync.Mutex
	items []ports.PeriodArchive
}

var _ ports.ArchiveWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// WriteArchive records the archive and returns a synthetic reference.
// Re-archiving the same period overwrites the earlier entry, mirroring how a
// retried export lands in the same place.
func (s *Store) WriteArchive(_ context.Context, archive ports.PeriodArchive) (string, error) {
	if archive.Period.EndDate == nil {
		return "", fmt.Errorf("period %s is not closed", archive.Period.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.items {
		if existing.Period.ID == archive.Period.ID {
			s.items[i] = archive
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	s.items = append(s.items, archive)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Archives returns a copy of everything written so far.
func (s *Store) Archives() []ports.PeriodArchive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.PeriodArchive(nil), s.items...)
}
