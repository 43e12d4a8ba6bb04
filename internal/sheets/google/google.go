package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"bilancio/internal/core"
	"bilancio/internal/log"
	ports "bilancio/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Column layout of a mirrored transaction row.
var header = []any{"ID", "Date", "Type", "Title", "Category", "Amount", "Notes", "User", "Timestamp"}

type Options struct {
	SpreadsheetID string
	// SheetName is the base tab name; each year gets its own "<year> <name>" tab.
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger

	mu       sync.Mutex
	sheetIDs map[string]int64
	creating singleflight.Group
}

// Ensure interface conformance
var (
	_ ports.Mirror      = (*Client)(nil)
	_ ports.BatchWriter = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.Default(log.ComponentSheets)
	}
	svc, err := newSheetsService(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts.SpreadsheetID, opts.SheetName, logger), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default(log.ComponentSheets)
	}
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Transactions"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetBase),
		logger:        logger.WithComponent(log.ComponentSheets),
		sheetIDs:      make(map[string]int64),
	}
}

func newSheetsService(ctx context.Context, opts Options, logger *log.Logger) (*gsheet.Service, error) {
	credentialsFile := strings.TrimSpace(opts.CredentialsFile)
	if opts.CredentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case opts.CredentialsJSON != "":
		logger.InfoContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(opts.CredentialsJSON)
	case credentialsFile != "":
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.InfoContext(ctx, "Read service account credentials", "path", credentialsFile, "size", len(data))
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// AppendTransaction writes tx to the tab of the year it is dated in.
func (c *Client) AppendTransaction(ctx context.Context, userID string, tx core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if tx.ID == "" {
		return "", errors.New("transaction id is required")
	}
	sheet := yearPrefixedName(c.sheetBase, tx.Date.Year())
	if _, err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	rows, err := c.readIDs(ctx, sheet)
	if err != nil {
		return "", err
	}
	if idx := rowIndexOf(rows, tx.ID); idx >= 0 {
		c.logger.DebugContext(ctx, "Transaction already mirrored", log.FieldTransactionID, tx.ID, "sheet", sheet)
		return rowRef(sheet, idx), nil
	}

	ref, err := c.appendRows(ctx, sheet, [][]any{transactionRow(userID, tx)})
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "Transaction mirrored",
		log.FieldTransactionID, tx.ID,
		log.FieldUserID, userID,
		"range", ref)
	return ref, nil
}

// AppendTransactions mirrors the transactions of one user. Each year tab's
// id column is read once and the missing rows go out in one append per tab.
// It returns the number of rows written; rows already present are skipped.
func (c *Client) AppendTransactions(ctx context.Context, userID string, txs []core.Transaction) (int, error) {
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}
	byTab := make(map[string][]core.Transaction)
	var tabs []string
	for _, tx := range txs {
		if tx.ID == "" {
			return 0, errors.New("transaction id is required")
		}
		sheet := yearPrefixedName(c.sheetBase, tx.Date.Year())
		if _, ok := byTab[sheet]; !ok {
			tabs = append(tabs, sheet)
		}
		byTab[sheet] = append(byTab[sheet], tx)
	}

	appended := 0
	for _, sheet := range tabs {
		if _, err := c.ensureSheet(ctx, sheet); err != nil {
			return appended, err
		}
		rows, err := c.readIDs(ctx, sheet)
		if err != nil {
			return appended, err
		}
		present := make(map[string]bool, len(rows))
		for _, row := range rows {
			if len(row) > 0 {
				present[strings.TrimSpace(fmt.Sprint(row[0]))] = true
			}
		}

		var values [][]any
		for _, tx := range byTab[sheet] {
			if present[tx.ID] {
				continue
			}
			present[tx.ID] = true
			values = append(values, transactionRow(userID, tx))
		}
		if len(values) == 0 {
			continue
		}
		if _, err := c.appendRows(ctx, sheet, values); err != nil {
			return appended, err
		}
		appended += len(values)
	}

	c.logger.InfoContext(ctx, "Transactions mirrored",
		log.FieldUserID, userID,
		log.FieldCount, appended,
		"skipped", len(txs)-appended)
	return appended, nil
}

func (c *Client) appendRows(ctx context.Context, sheet string, values [][]any) (string, error) {
	vr := &gsheet.ValueRange{Values: values}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1(sheet, "A:I"), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return a1(sheet, "A:I"), nil
}

// DeleteTransaction removes the row holding tx.ID. A missing row yields
// ports.ErrRowNotFound.
func (c *Client) DeleteTransaction(ctx context.Context, tx core.Transaction) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, tx.Date.Year())
	sheetID, ok, err := c.lookupSheet(ctx, sheet)
	if err != nil {
		return err
	}
	if !ok {
		return ports.ErrRowNotFound
	}

	rows, err := c.readIDs(ctx, sheet)
	if err != nil {
		return err
	}
	idx := rowIndexOf(rows, tx.ID)
	if idx < 0 {
		return ports.ErrRowNotFound
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{
			Range: &gsheet.DimensionRange{
				SheetId:    sheetID,
				Dimension:  "ROWS",
				StartIndex: int64(idx),
				EndIndex:   int64(idx + 1),
				// Zero is a valid sheet id and row index.
				ForceSendFields: []string{"SheetId", "StartIndex"},
			},
		},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", idx+1, sheet, err)
	}
	c.logger.InfoContext(ctx, "Transaction row deleted", log.FieldTransactionID, tx.ID, "sheet", sheet, "row", idx+1)
	return nil
}

func (c *Client) readIDs(ctx context.Context, sheet string) ([][]any, error) {
	rng := a1(sheet, "A:A")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// lookupSheet resolves a tab title to its sheet id.
func (c *Client) lookupSheet(ctx context.Context, title string) (int64, bool, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[title]
	c.mu.Unlock()
	if ok {
		return id, true, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("read spreadsheet: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	id, ok = c.sheetIDs[title]
	return id, ok, nil
}

// ensureSheet creates the tab with its header row when missing. Concurrent
// callers for the same title share one creation.
func (c *Client) ensureSheet(ctx context.Context, title string) (int64, error) {
	id, ok, err := c.lookupSheet(ctx, title)
	if err != nil || ok {
		return id, err
	}

	v, err, _ := c.creating.Do(title, func() (any, error) {
		return c.createSheet(ctx, title)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (c *Client) createSheet(ctx context.Context, title string) (int64, error) {
	if id, ok, err := c.lookupSheet(ctx, title); err != nil || ok {
		return id, err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		// Another writer may have added the tab since the lookup.
		if id, ok, lerr := c.lookupSheet(ctx, title); lerr == nil && ok {
			c.logger.DebugContext(ctx, "Sheet created concurrently", "sheet", title)
			return id, nil
		}
		return 0, fmt.Errorf("add sheet %s: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("add sheet %s: empty reply", title)
	}
	id := resp.Replies[0].AddSheet.Properties.SheetId

	vr := &gsheet.ValueRange{Values: [][]any{header}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1(title, "A1:I1"), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("write header to %s: %w", title, err)
	}

	c.mu.Lock()
	c.sheetIDs[title] = id
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "Created sheet", "sheet", title)
	return id, nil
}

func transactionRow(userID string, tx core.Transaction) []any {
	return []any{
		tx.ID,
		tx.Date.String(),
		string(tx.Type),
		tx.Title,
		tx.Category,
		tx.Amount.Float(),
		tx.Notes,
		userID,
		tx.Timestamp.UTC().Format(time.RFC3339),
	}
}

// rowIndexOf returns the zero-based row whose first cell equals id, or -1.
func rowIndexOf(values [][]any, id string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i
		}
	}
	return -1
}

func rowRef(sheet string, idx int) string {
	return a1(sheet, fmt.Sprintf("A%d:I%d", idx+1, idx+1))
}

// a1 builds an A1 range, quoting the tab title.
func a1(sheet, rng string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(sheet, "'", "''"), rng)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
