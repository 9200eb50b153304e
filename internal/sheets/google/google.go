// Package google exports closed periods to a Google Sheets spreadsheet using
// service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "potledger/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.ArchiveWriter = (*Client)(nil)

// New creates a Sheets archive writer. Credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if sheetName == "" {
		sheetName = "Archive"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// WriteArchive appends one row per pot plus a summary row for the period.
// Amounts are written as decimal pounds so the sheet stays human-readable.
func (c *Client) WriteArchive(ctx context.Context, archive ports.PeriodArchive) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if archive.Period.EndDate == nil {
		return "", fmt.Errorf("period %s is not closed", archive.Period.ID)
	}

	rows := buildRows(archive)

	rng := fmt.Sprintf("%s!A:H", c.sheetName)
	vr := &gsheet.ValueRange{Values: rows}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append archive for period %s: %w", archive.Period.ID, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

func buildRows(archive ports.PeriodArchive) [][]any {
	p := archive.Period
	month := p.StartDate.Format("2006-01")

	rows := [][]any{{
		month, "period", p.ID,
		pounds(p.Income.Cents),
		pounds(p.Spent.Cents),
		pounds(p.Saved.Cents),
		pounds(p.LeftOver.Cents),
		pounds(p.SubscriptionCost.Cents),
	}}
	for _, s := range archive.Spending {
		rows = append(rows, []any{
			month, "spending", s.Name,
			pounds(s.Allocated.Cents),
			pounds(s.Spent.Cents),
			pounds(s.Left.Cents),
			"", "",
		})
	}
	for _, s := range archive.Savings {
		rows = append(rows, []any{
			month, "savings", s.Name,
			pounds(s.Balance.Cents),
			pounds(s.Added.Cents),
			"", "", "",
		})
	}
	return rows
}

func pounds(cents int64) float64 {
	return float64(cents) / 100.0
}
