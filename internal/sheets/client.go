// Package sheets reads upload rows from a Google Sheets worksheet and writes
// their status back.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"ytuploader/internal/core"
)

// ErrColumnNotFound is returned when a mapped column is missing from the
// header row.
var ErrColumnNotFound = errors.New("column not found in sheet header")

// firstDataRow is the sheet row of the first record; row 1 is the header.
const firstDataRow = 2

type cellUpdate struct {
	Range string
	Value string
}

// valuesService is the subset of the Sheets values API the client uses.
type valuesService interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, updates []cellUpdate) error
}

type apiValues struct {
	svc *gsheets.Service
}

func (a apiValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (a apiValues) BatchUpdate(ctx context.Context, spreadsheetID string, updates []cellUpdate) error {
	req := &gsheets.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
	for _, u := range updates {
		req.Data = append(req.Data, &gsheets.ValueRange{
			Range:  u.Range,
			Values: [][]interface{}{{u.Value}},
		})
	}
	_, err := a.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

// Client is a core.RowSource backed by one worksheet.
type Client struct {
	values        valuesService
	spreadsheetID string
	worksheet     string
	mapping       core.ColumnMapping
	logger        *slog.Logger
}

// Options locates the worksheet.
type Options struct {
	CredentialsFile string
	SpreadsheetID   string
	Worksheet       string
	Mapping         core.ColumnMapping
}

// New authenticates with a service account file.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Client, error) {
	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(opts.CredentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newClient(apiValues{svc: svc}, opts, logger), nil
}

func newClient(values valuesService, opts Options, logger *slog.Logger) *Client {
	return &Client{
		values:        values,
		spreadsheetID: opts.SpreadsheetID,
		worksheet:     opts.Worksheet,
		mapping:       opts.Mapping,
		logger:        logger,
	}
}

// FetchPending returns the first row whose status is "new", ignoring case
// and surrounding whitespace.
func (c *Client) FetchPending(ctx context.Context) (*core.Row, error) {
	data, err := c.values.Get(ctx, c.spreadsheetID, quoteSheet(c.worksheet))
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", c.worksheet, err)
	}
	if len(data) == 0 {
		c.logger.Info("worksheet is empty", "worksheet", c.worksheet)
		return nil, nil
	}
	header := cellStrings(data[0])
	if indexOf(header, c.mapping.Status) < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, c.mapping.Status)
	}
	for i, raw := range data[1:] {
		values := record(header, cellStrings(raw))
		if strings.EqualFold(strings.TrimSpace(values[c.mapping.Status]), string(core.RowStatusNew)) {
			return &core.Row{Index: i + firstDataRow, Values: values}, nil
		}
	}
	c.logger.Debug("no pending rows in sheet", "rows", len(data)-1)
	return nil, nil
}

// UpdateStatus writes status and, when resultURL is set, the URL cell in a
// single batch. Both columns are resolved before anything is written.
func (c *Client) UpdateStatus(ctx context.Context, row core.Row, status core.RowStatus, resultURL string) error {
	data, err := c.values.Get(ctx, c.spreadsheetID, quoteSheet(c.worksheet)+"!1:1")
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	var header []string
	if len(data) > 0 {
		header = cellStrings(data[0])
	}
	statusCol := indexOf(header, c.mapping.Status)
	if statusCol < 0 {
		return fmt.Errorf("%w: %q", ErrColumnNotFound, c.mapping.Status)
	}
	updates := []cellUpdate{{Range: cellRange(c.worksheet, statusCol+1, row.Index), Value: string(status)}}
	if resultURL != "" {
		urlCol := indexOf(header, c.mapping.YouTubeURL)
		if urlCol < 0 {
			return fmt.Errorf("%w: %q", ErrColumnNotFound, c.mapping.YouTubeURL)
		}
		updates = append(updates, cellUpdate{Range: cellRange(c.worksheet, urlCol+1, row.Index), Value: resultURL})
	}
	if err := c.values.BatchUpdate(ctx, c.spreadsheetID, updates); err != nil {
		return fmt.Errorf("write row %d: %w", row.Index, err)
	}
	c.logger.Debug("row status written", "row", row.Index, "status", status)
	return nil
}

func cellStrings(cells []any) []string {
	out := make([]string, len(cells))
	for i, v := range cells {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

// record maps header names to cell values. Missing trailing cells read as
// "" and only the first column with a given name is used.
func record(header, cells []string) map[string]string {
	values := make(map[string]string, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		if _, dup := values[name]; dup {
			continue
		}
		if i < len(cells) {
			values[name] = cells[i]
		} else {
			values[name] = ""
		}
	}
	return values
}

func indexOf(header []string, name string) int {
	if name == "" {
		return -1
	}
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
