// Package google writes monthly summary rows to a Google spreadsheet using a
// service account.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	ports "gagyebu/internal/sheets"
)

var (
	_ ports.SummaryWriter = (*Client)(nil)
	_ ports.SummaryLister = (*Client)(nil)
)

var ErrNoCredentials = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *applog.Logger

	// Serialises find-then-write so two exports of the same key cannot
	// both append.
	mu sync.Mutex
}

type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// New builds a Sheets service from service account credentials.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Summary"
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentSheets)
	logger.InfoContext(ctx, "Google Sheets service created", "sheet", cfg.SheetName)
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheet: cfg.SheetName, logger: logger}, nil
}

// credentials prefers inline JSON over a file path.
func credentials(cfg Config) ([]byte, error) {
	if v := strings.TrimSpace(cfg.ServiceAccountJSON); v != "" {
		return []byte(v), nil
	}
	if path := strings.TrimSpace(cfg.ServiceAccountFile); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, ErrNoCredentials
}

// UpsertSummary writes row over the existing line for its key, or appends
// it. A missing header is written first.
func (c *Client) UpsertSummary(ctx context.Context, row ports.SummaryRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	keysRange := fmt.Sprintf("%s!A:B", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, keysRange).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", keysRange, err)
	}

	values := resp.Values
	if len(values) == 0 {
		if err := c.write(ctx, 1, headerValues()); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		values = [][]any{headerValues()}
	}

	n := findRow(values, row.Month, row.Household)
	if n == 0 {
		n = len(values) + 1
	}
	if err := c.write(ctx, n, rowValues(row)); err != nil {
		return "", err
	}

	ref := fmt.Sprintf("%s!A%d:I%d", c.sheet, n, n)
	c.logger.DebugContext(ctx, "Summary row written",
		applog.FieldMonth, row.Month.String(), "household", row.Household, "ref", ref)
	return ref, nil
}

func (c *Client) write(ctx context.Context, n int, values []any) error {
	rng := fmt.Sprintf("%s!A%d:I%d", c.sheet, n, n)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// ListSummaries reads every row of month, skipping lines that do not parse.
func (c *Client) ListSummaries(ctx context.Context, month core.Month) ([]ports.SummaryRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A2:I", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	var out []ports.SummaryRow
	for i, raw := range resp.Values {
		row, err := parseRow(raw)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping malformed summary row", "row", i+2, applog.FieldError, err)
			continue
		}
		if row.Month == month {
			out = append(out, row)
		}
	}
	return out, nil
}
