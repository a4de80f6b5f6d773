package types

// Column ids usable in a worksheet RowSchema.
const (
	ColumnPurchaser       = "purchaser"
	ColumnScreenshotDate  = "screenshot_date"
	ColumnAccountEmail    = "account_email"
	ColumnAccountPassword = "account_password"
	ColumnEventName       = "event_name"
	ColumnEventDate       = "event_date"
	ColumnVenue           = "venue"
	ColumnLocation        = "location"
	ColumnQuantity        = "quantity"
	ColumnTotalPrice      = "total_price"
	ColumnLast4           = "last4"
	ColumnUnitPrice       = "unit_price"
	ColumnSubmissionID    = "submission_id"
)

// KnownColumns is the set of column ids a schema may reference.
var KnownColumns = map[string]bool{
	ColumnPurchaser:       true,
	ColumnScreenshotDate:  true,
	ColumnAccountEmail:    true,
	ColumnAccountPassword: true,
	ColumnEventName:       true,
	ColumnEventDate:       true,
	ColumnVenue:           true,
	ColumnLocation:        true,
	ColumnQuantity:        true,
	ColumnTotalPrice:      true,
	ColumnLast4:           true,
	ColumnUnitPrice:       true,
	ColumnSubmissionID:    true,
}

// DateColumns are presented with a sheet date format after append.
var DateColumns = map[string]bool{
	ColumnScreenshotDate: true,
	ColumnEventDate:      true,
}

// DefaultRowSchema is the column order of the original order sheet.
var DefaultRowSchema = RowSchema{
	Version: 1,
	Columns: []string{
		ColumnPurchaser,
		ColumnScreenshotDate,
		ColumnAccountEmail,
		ColumnAccountPassword,
		ColumnEventName,
		ColumnEventDate,
		ColumnVenue,
		ColumnLocation,
		ColumnQuantity,
		ColumnTotalPrice,
	},
}
