// Package sheets implements the durable case sink on top of the Google
// Sheets API.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/cases"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/config"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/sink"
)

const (
	// firstDataRow leaves row 1 for the sheet header.
	firstDataRow = 2

	retryAttempts   = 3
	timestampLayout = "02.01.2006 15:04"
)

// displayZone matches the operators' local time in recorded timestamps.
var displayZone = time.FixedZone("UTC+3", 3*60*60)

// rowAPI is the minimal spreadsheet surface the client needs. The real
// implementation talks to the Sheets API; tests substitute a fake.
type rowAPI interface {
	// readKeyColumn returns the case-ID column of the data window, one
	// entry per row starting at firstDataRow. Trailing empty rows may be
	// omitted entirely.
	readKeyColumn(ctx context.Context) ([]string, error)
	writeRow(ctx context.Context, row int, values []any) error
}

// Client appends completed cases as rows of a bounded sheet region.
type Client struct {
	api        rowAPI
	maxDataRow int
	ids        *sink.IDGenerator
	log        *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error

	// mu serializes the scan+write pair: without it two concurrent
	// appends can pick the same free row and the later write overwrites
	// the earlier case.
	mu sync.Mutex
}

// New authenticates with a service-account credentials file and builds a
// sheet-backed sink client.
func New(ctx context.Context, cfg config.SheetsConfig, log *slog.Logger) (*Client, error) {
	credentials, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(credentials, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}

	service, err := sheetsapi.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("initialize sheets service: %w", err)
	}

	return newClient(&sheetsRowAPI{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		maxDataRow:    cfg.MaxDataRow,
	}, cfg.MaxDataRow, log), nil
}

func newClient(api rowAPI, maxDataRow int, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		api:        api,
		maxDataRow: maxDataRow,
		ids:        sink.NewIDGenerator(),
		log:        log.With("component", "sink.sheets"),
		sleep:      sleepContext,
	}
}

// Append locates the first free row in the data window, generates a case
// identifier and writes the record. Transient API failures are retried
// with exponential backoff; a full table is permanent.
func (c *Client) Append(ctx context.Context, rec cases.Record) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, err := c.firstFreeRow(ctx)
	if err != nil {
		return "", err
	}

	caseID := c.ids.Next()
	values := []any{
		caseID,
		rec.Timestamp.In(displayZone).Format(timestampLayout),
		"",
		"",
		rec.OperatorName,
		rec.CustomerInfo,
		rec.ProblemText,
		rec.Status,
		"FALSE",
		"FALSE",
	}

	err = c.withRetry(ctx, "write row", func() error {
		return c.api.writeRow(ctx, row, values)
	})
	if err != nil {
		return "", fmt.Errorf("append case row: %w", err)
	}

	c.log.Info("Case appended", "case_id", caseID, "row", row)
	return caseID, nil
}

// firstFreeRow scans the key column for the first unoccupied row within
// the window, or fails with ErrTableFull when every row is taken.
func (c *Client) firstFreeRow(ctx context.Context) (int, error) {
	var column []string
	err := c.withRetry(ctx, "read key column", func() error {
		var readErr error
		column, readErr = c.api.readKeyColumn(ctx)
		return readErr
	})
	if err != nil {
		return 0, fmt.Errorf("scan data window: %w", err)
	}

	for i, value := range column {
		if strings.TrimSpace(value) == "" {
			return firstDataRow + i, nil
		}
	}

	next := firstDataRow + len(column)
	if next > c.maxDataRow {
		return 0, sink.ErrTableFull
	}

	return next, nil
}

// withRetry runs fn up to retryAttempts times, sleeping 2^attempt seconds
// between retryable failures. Non-retryable errors propagate immediately.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == retryAttempts {
			return err
		}

		delay := time.Duration(1<<uint(attempt)) * time.Second
		c.log.Warn("Sheets call failed, retrying", "op", op, "attempt", attempt, "delay", delay, "error", err)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}

	return err
}

// retryable classifies rate-limit, server-side and timeout failures as
// transient.
func retryable(err error) bool {
	if errors.Is(err, sink.ErrTableFull) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sheetsRowAPI is the production rowAPI over the Sheets values service.
type sheetsRowAPI struct {
	service       *sheetsapi.Service
	spreadsheetID string
	sheetName     string
	maxDataRow    int
}

func (s *sheetsRowAPI) readKeyColumn(ctx context.Context) ([]string, error) {
	readRange := fmt.Sprintf("%s!A%d:A%d", s.sheetName, firstDataRow, s.maxDataRow)
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	column := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			column = append(column, "")
			continue
		}
		column = append(column, fmt.Sprint(row[0]))
	}

	return column, nil
}

func (s *sheetsRowAPI) writeRow(ctx context.Context, row int, values []any) error {
	writeRange := fmt.Sprintf("%s!A%d:J%d", s.sheetName, row, row)
	valueRange := &sheetsapi.ValueRange{Values: [][]any{values}}

	_, err := s.service.Spreadsheets.Values.
		Update(s.spreadsheetID, writeRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}
