package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"hisab/internal/currency"
	"hisab/internal/log"
)

// SheetsConfig selects the spreadsheet and the service account used to write it.
type SheetsConfig struct {
	SpreadsheetID   string
	CredentialsFile string
	CredentialsJSON string
}

// Sheets writes each scope to its own tab of one spreadsheet.
type Sheets struct {
	svc           *gsheet.Service
	spreadsheetID string
	conv          currency.Converter
	logger        *log.Logger
}

var _ Exporter = (*Sheets)(nil)

// NewSheets authenticates with a service account. Inline JSON wins over the
// credentials file.
func NewSheets(ctx context.Context, cfg SheetsConfig, conv currency.Converter, logger *log.Logger) (*Sheets, error) {
	credentials, err := credentialsJSON(cfg)
	if err != nil {
		return nil, err
	}
	return newSheets(ctx, cfg.SpreadsheetID, conv, logger,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func credentialsJSON(cfg SheetsConfig) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials")
	}
}

func newSheets(ctx context.Context, spreadsheetID string, conv currency.Converter, logger *log.Logger, opts ...goption.ClientOption) (*Sheets, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.NewDiscard()
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Sheets{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		conv:          conv,
		logger:        logger.WithComponent(log.ComponentExport),
	}, nil
}

// ExportProfile replaces the scope's tab with a fresh rendering.
func (s *Sheets) ExportProfile(ctx context.Context, p ProfileExport) (string, error) {
	title := SheetTitle(p.UserID, p.ProfileID)
	if err := s.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, quoted, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear sheet %s: %w", title, err)
	}

	rows := BuildRows(p, s.conv)
	resp, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, quoted+"!A1", &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write sheet %s: %w", title, err)
	}

	ref := resp.UpdatedRange
	if ref == "" {
		ref = fmt.Sprintf("%s!A1:H%d", title, len(rows))
	}
	s.logger.InfoContext(ctx, "Profile exported",
		log.NewFields().
			WithScope(p.UserID, p.ProfileID).
			WithOperation(log.OpExport).
			WithExportRef(ref).ToSlice()...)
	return ref, nil
}

func (s *Sheets) ensureSheet(ctx context.Context, title string) error {
	doc, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	return nil
}
