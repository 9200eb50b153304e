// Package sheets defines the outbound port for archiving closed periods.
package sheets

import (
	"context"

	"potledger/internal/core"
)

// PeriodArchive is one closed period with its frozen pot history, ready to
// be exported.
type PeriodArchive struct {
	Period   core.Period
	Spending []core.SpendingSnapshot
	Savings  []core.SavingsSnapshot
}

// ArchiveWriter exports a closed period to external storage. Exports are
// retried by the consumer, so writers must tolerate seeing the same period
// twice.
type ArchiveWriter interface {
	WriteArchive(ctx context.Context, archive PeriodArchive) (ref string, err error)
}
