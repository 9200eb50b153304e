package services

import "sync"

// RolloverGate serializes period rollover against categorization. Categorizer
// batches hold the read side so many can run at once; rollover takes the
// write side so no pot mutation can interleave with the close-snapshot-reset
// sequence.
//
// The gate only covers callers in the same process. When categorization and
// rollover run in separate binaries, the same exclusion is carried by the
// database: every pot mutation and the whole rollover each commit as one
// transaction, so a concurrent writer blocks until the rollover commits
// instead of interleaving with it.
type RolloverGate struct {
	mu sync.RWMutex
}

func NewRolloverGate() *RolloverGate {
	return &RolloverGate{}
}

func (g *RolloverGate) Enter()        { g.mu.RLock() }
func (g *RolloverGate) Leave()        { g.mu.RUnlock() }
func (g *RolloverGate) Exclusive()    { g.mu.Lock() }
func (g *RolloverGate) ExclusiveEnd() { g.mu.Unlock() }
