package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/ticketdesk/orderbot/errors"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/pkg/sheets"
	"github.com/ticketdesk/orderbot/types"
)

// RouteRequest is everything the router needs for one accepted record.
type RouteRequest struct {
	Submission types.Submission
	Record     *types.OrderRecord
	Decision   types.RoutingDecision
}

// Router writes accepted records to their worksheet.
type Router struct {
	store   SpreadsheetStore
	mapper  *FieldMapper
	metrics Metrics
	now     func() time.Time
	timeout time.Duration
}

type RouterOption func(*Router)

// WithClock overrides the time source used for the date fallback.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		r.now = now
	}
}

// WithStoreTimeout bounds each spreadsheet call.
func WithStoreTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.timeout = d
	}
}

func NewRouter(store SpreadsheetStore, mapper *FieldMapper, metrics Metrics, opts ...RouterOption) *Router {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	r := &Router{
		store:   store,
		mapper:  mapper,
		metrics: metrics,
		now:     time.Now,
		timeout: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route resolves the destination worksheet, appends one row and then applies
// date formatting. Only the append decides success.
func (r *Router) Route(ctx context.Context, req RouteRequest) (*types.RowWritten, error) {
	log := logger.FromContext(ctx)
	decision := req.Decision

	ws, err := r.resolve(ctx, decision.Spreadsheet, decision.Worksheet)
	worksheetFallback := false
	if errors.Is(err, sheets.ErrWorksheetNotFound) && decision.Matched {
		def := r.mapper.DefaultWorksheet()
		log.Warnw("Routed worksheet does not exist, falling back to default worksheet",
			"worksheet", decision.Worksheet,
			"rule", decision.Rule,
			"fallback", def.Worksheet,
			"cause", "worksheet_missing")
		r.metrics.WorksheetFallback("worksheet_missing")

		ws, err = r.resolve(ctx, def.Spreadsheet, def.Worksheet)
		decision.Spreadsheet = def.Spreadsheet
		decision.Worksheet = def.Worksheet
		decision.Schema = r.mapper.SchemaFor(def.Worksheet)
		worksheetFallback = true
	}
	if err != nil {
		return nil, routingError(err)
	}

	values, dateCols, dateFallback := r.buildRow(ctx, req.Submission, req.Record, decision.Schema)

	// The append runs to completion once started so a shutdown never leaves it
	// ambiguous.
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	row, err := r.store.AppendRow(appendCtx, ws, values)
	if err != nil {
		return nil, routingError(err)
	}

	written := &types.RowWritten{
		Spreadsheet:       decision.Spreadsheet,
		Worksheet:         ws.Title,
		RowNumber:         row,
		SchemaVersion:     decision.Schema.Version,
		Columns:           decision.Schema.Columns,
		Values:            values,
		WorksheetFallback: worksheetFallback,
		DateFallback:      dateFallback,
	}

	if row > 0 && len(dateCols) > 0 {
		fmtCtx, cancelFmt := context.WithTimeout(ctx, r.timeout)
		defer cancelFmt()
		if err := r.store.FormatDateColumns(fmtCtx, ws, row, dateCols); err != nil {
			log.Warnw("Failed to apply date format, row was appended", "worksheet", ws.Title, "row", row, "error", err)
		}
	}

	log.Infow("Order row appended",
		"worksheet", ws.Title,
		"row", row,
		"schemaVersion", decision.Schema.Version,
		"worksheetFallback", worksheetFallback,
		"dateFallback", dateFallback)
	return written, nil
}

func (r *Router) resolve(ctx context.Context, selector, worksheet string) (sheets.Worksheet, error) {
	ref, ok := r.mapper.Spreadsheet(selector)
	if !ok {
		return sheets.Worksheet{}, fmt.Errorf("%w: unknown selector %q", sheets.ErrSpreadsheetNotFound, selector)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.Worksheet(ctx, sheets.Ref{ID: ref.ID, Name: ref.Name}, worksheet)
}

func routingError(err error) error {
	if errors.Is(err, sheets.ErrSpreadsheetNotFound) || errors.Is(err, sheets.ErrWorksheetNotFound) {
		return apperrors.RoutingFailed(apperrors.KindNotFound, err.Error(), err)
	}
	return apperrors.RoutingFailed(apperrors.KindServiceError, err.Error(), err)
}

// buildRow lays the record out in schema column order. It returns the values,
// the 0-based indexes of date columns and whether the event date fell back to
// the routing time.
func (r *Router) buildRow(ctx context.Context, sub types.Submission, rec *types.OrderRecord, schema types.RowSchema) ([]interface{}, []int, bool) {
	values := make([]interface{}, len(schema.Columns))
	var dateCols []int
	dateFallback := false

	for i, col := range schema.Columns {
		if types.DateColumns[col] {
			dateCols = append(dateCols, i)
		}
		switch col {
		case types.ColumnPurchaser:
			values[i] = sub.Submitter
		case types.ColumnScreenshotDate:
			values[i] = sub.CreatedAt.Format(SheetDateLayout)
		case types.ColumnAccountEmail:
			values[i] = TextCell(rec.Value(types.FieldAccountEmail))
		case types.ColumnAccountPassword:
			values[i] = TextCell(rec.Value(types.FieldAccountPassword))
		case types.ColumnEventName:
			values[i] = TextCell(rec.Value(types.FieldEventName))
		case types.ColumnEventDate:
			raw, ok := rec.Get(types.FieldEventDate)
			if !ok {
				values[i] = ""
				continue
			}
			date, parsed := NormalizeDate(raw, r.now)
			if !parsed {
				dateFallback = true
				r.metrics.DateFallback()
				logger.FromContext(ctx).Warnw("Event date not recognised, using routing time",
					"raw", raw,
					"written", date,
					"policy", "date_fallback_to_now")
			}
			values[i] = date
		case types.ColumnVenue:
			values[i] = TextCell(rec.Value(types.FieldVenue))
		case types.ColumnLocation:
			values[i] = TextCell(rec.Value(types.FieldLocation))
		case types.ColumnQuantity:
			raw := rec.Value(types.FieldQuantity)
			n, err := ParseQuantity(raw)
			if err != nil {
				logger.FromContext(ctx).Warnw("Quantity out of range, writing extracted text", "raw", raw, "error", err)
				values[i] = TextCell(raw)
				continue
			}
			values[i] = n
		case types.ColumnTotalPrice:
			values[i] = TextCell(rec.Value(types.FieldTotalPrice))
		case types.ColumnLast4:
			values[i] = TextCell(rec.Value(types.FieldLast4))
		case types.ColumnUnitPrice:
			values[i] = UnitPrice(rec.Value(types.FieldTotalPrice), NormalizeQuantity(rec.Value(types.FieldQuantity)))
		case types.ColumnSubmissionID:
			values[i] = sub.ID.String()
		default:
			values[i] = ""
		}
	}
	return values, dateCols, dateFallback
}

// TextCell marks an extracted value as literal text. The sheet parses appended
// values as if typed, so a leading quote keeps "=..." from becoming a formula
// and "0042" from losing its zeros. The quote itself is not displayed.
func TextCell(v string) string {
	if v == "" {
		return ""
	}
	return "'" + v
}
