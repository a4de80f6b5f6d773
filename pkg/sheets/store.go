// Package sheets appends order rows to Google Sheets worksheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ticketdesk/orderbot/logger"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

var (
	ErrSpreadsheetNotFound = errors.New("spreadsheet not found")
	ErrWorksheetNotFound   = errors.New("worksheet not found")
)

const (
	spreadsheetMIME  = "application/vnd.google-apps.spreadsheet"
	dateNumberFormat = "mm/dd/yyyy"
)

var updatedRowPattern = regexp.MustCompile(`![A-Z]+(\d+)`)

// Ref addresses a spreadsheet by id, or by name when ID is empty.
type Ref struct {
	ID   string
	Name string
}

func (r Ref) String() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Name
}

// Worksheet is a resolved worksheet inside a spreadsheet.
type Worksheet struct {
	SpreadsheetID string
	SheetID       int64
	Title         string
}

// Store is a thin client over the Sheets and Drive APIs.
type Store struct {
	sheets *gsheets.Service
	drive  *drive.Service

	mu       sync.RWMutex
	idByName map[string]string
}

// NewStore authenticates with a service account credentials file.
func NewStore(ctx context.Context, credentialsFile string) (*Store, error) {
	return NewStoreWithOptions(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope, drive.DriveReadonlyScope),
	)
}

// NewStoreWithOptions builds a store from explicit client options.
func NewStoreWithOptions(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	sheetsSvc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Store{
		sheets:   sheetsSvc,
		drive:    driveSvc,
		idByName: make(map[string]string),
	}, nil
}

// Worksheet resolves a worksheet by title. Titles match case-insensitively.
func (s *Store) Worksheet(ctx context.Context, ref Ref, title string) (Worksheet, error) {
	id, err := s.spreadsheetID(ctx, ref)
	if err != nil {
		return Worksheet{}, err
	}

	ss, err := s.sheets.Spreadsheets.Get(id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return Worksheet{}, fmt.Errorf("%w: %s", ErrSpreadsheetNotFound, ref)
		}
		return Worksheet{}, fmt.Errorf("failed to get spreadsheet %s: %w", ref, err)
	}

	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		if strings.EqualFold(sh.Properties.Title, strings.TrimSpace(title)) {
			return Worksheet{
				SpreadsheetID: id,
				SheetID:       sh.Properties.SheetId,
				Title:         sh.Properties.Title,
			}, nil
		}
	}
	return Worksheet{}, fmt.Errorf("%w: %q in %s", ErrWorksheetNotFound, title, ref)
}

func (s *Store) spreadsheetID(ctx context.Context, ref Ref) (string, error) {
	if ref.ID != "" {
		return ref.ID, nil
	}
	if ref.Name == "" {
		return "", fmt.Errorf("%w: empty reference", ErrSpreadsheetNotFound)
	}

	s.mu.RLock()
	id, ok := s.idByName[ref.Name]
	s.mu.RUnlock()
	if ok {
		return id, nil
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(ref.Name, "'", `\'`), spreadsheetMIME)
	list, err := s.drive.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up spreadsheet %q: %w", ref.Name, err)
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("%w: %q", ErrSpreadsheetNotFound, ref.Name)
	}

	id = list.Files[0].Id
	s.mu.Lock()
	s.idByName[ref.Name] = id
	s.mu.Unlock()

	logger.GetLogger().Debugw("Resolved spreadsheet by name", "name", ref.Name, "spreadsheetId", id)
	return id, nil
}

// AppendRow appends one row below the worksheet's data in a single call and
// returns its 1-based row number.
func (s *Store) AppendRow(ctx context.Context, ws Worksheet, values []interface{}) (int, error) {
	vr := &gsheets.ValueRange{
		MajorDimension: "ROWS",
		Values:         [][]interface{}{values},
	}
	resp, err := s.sheets.Spreadsheets.Values.
		Append(ws.SpreadsheetID, quoteTitle(ws.Title)+"!A1", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %s", ErrWorksheetNotFound, ws.Title)
		}
		return 0, fmt.Errorf("failed to append row to %s: %w", ws.Title, err)
	}

	if resp.Updates == nil {
		return 0, nil
	}
	return parseUpdatedRow(resp.Updates.UpdatedRange), nil
}

// FormatDateColumns applies a date number format to the given 0-based columns
// of one row.
func (s *Store) FormatDateColumns(ctx context.Context, ws Worksheet, row int, columns []int) error {
	if row <= 0 || len(columns) == 0 {
		return nil
	}

	requests := make([]*gsheets.Request, 0, len(columns))
	for _, col := range columns {
		requests = append(requests, &gsheets.Request{
			RepeatCell: &gsheets.RepeatCellRequest{
				Range: &gsheets.GridRange{
					SheetId:          ws.SheetID,
					StartRowIndex:    int64(row - 1),
					EndRowIndex:      int64(row),
					StartColumnIndex: int64(col),
					EndColumnIndex:   int64(col + 1),
					ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
				},
				Cell: &gsheets.CellData{
					UserEnteredFormat: &gsheets.CellFormat{
						NumberFormat: &gsheets.NumberFormat{Type: "DATE", Pattern: dateNumberFormat},
					},
				},
				Fields: "userEnteredFormat.numberFormat",
			},
		})
	}

	_, err := s.sheets.Spreadsheets.BatchUpdate(ws.SpreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to format date columns in %s: %w", ws.Title, err)
	}
	return nil
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func parseUpdatedRow(updatedRange string) int {
	m := updatedRowPattern.FindStringSubmatch(updatedRange)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
