package order

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ticketdesk/orderbot/pkg/valueobjects"
)

// SheetDateLayout is the date text written to date columns.
const SheetDateLayout = "01/02/2006"

// dateLayouts are tried in order: full datetimes first, then date-only forms.
var dateLayouts = []string{
	"01/02/2006 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006 3:04 PM",
	SheetDateLayout,
	"1/2/2006",
	"2006-01-02",
	"01/02/06",
	"1/2/06",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
}

var digitRun = regexp.MustCompile(`\d+`)

// ErrQuantityOutOfRange is returned when the digit run does not fit in an int.
var ErrQuantityOutOfRange = errors.New("quantity out of range")

// ParseQuantity returns the first run of digits in raw as an integer. It
// returns 0 and no error when raw has no digits.
func ParseQuantity(raw string) (int, error) {
	run := digitRun.FindString(raw)
	if run == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(run)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrQuantityOutOfRange, run)
	}
	return n, nil
}

// NormalizeQuantity is ParseQuantity with out of range runs reported as 0.
func NormalizeQuantity(raw string) int {
	n, err := ParseQuantity(raw)
	if err != nil {
		return 0
	}
	return n
}

// NormalizeDate rewrites raw as MM/DD/YYYY. When no known layout matches it
// returns now() formatted the same way and ok false. It is idempotent on its
// own output.
func NormalizeDate(raw string, now func() time.Time) (string, bool) {
	s := strings.Join(strings.Fields(raw), " ")
	if s != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(SheetDateLayout), true
			}
		}
	}
	return now().Format(SheetDateLayout), false
}

// UnitPrice divides the total price by quantity. It returns "" when the price
// cannot be read or the quantity is not positive.
func UnitPrice(totalPrice string, quantity int) string {
	if quantity <= 0 {
		return ""
	}
	total, err := valueobjects.ParseMoney(totalPrice)
	if err != nil {
		return ""
	}
	unit, err := total.PerUnit(quantity)
	if err != nil {
		return ""
	}
	return unit.Display()
}
