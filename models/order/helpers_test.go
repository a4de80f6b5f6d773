package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ticketdesk/orderbot/config"
	"github.com/ticketdesk/orderbot/types"
)

const testRoutingYAML = `
submitters:
  tiyu321: Tiyu
  StephanieMaeM: Hopey
teams:
  Tiyu: 329713f4-d3f1-44a0-a32b-04ec697d9ba4
  Hopey: 12345678-abcd-efgh-ijkl-9876543210aa
spreadsheets:
  orders: {name: ScreenshotBotTest}
worksheets:
  default: {spreadsheet: orders, worksheet: Sheet1}
  rules:
    - {name: vip, match: vip, spreadsheet: orders, worksheet: VIP Orders}
    - {name: presale, match: presale, spreadsheet: orders, worksheet: Presale}
schemas:
  worksheets:
    VIP Orders: {version: 2, columns: [purchaser, event_date, quantity, total_price, unit_price, submission_id]}
`

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testTables(t *testing.T) *config.RoutingTables {
	t.Helper()
	tables, err := config.ParseRoutingTables([]byte(testRoutingYAML))
	require.NoError(t, err)
	return tables
}

func fullRecord() *types.OrderRecord {
	return &types.OrderRecord{
		AccountEmail:    types.StringPtr("buyer@example.com"),
		AccountPassword: types.StringPtr("hunter2!"),
		EventName:       types.StringPtr("Foo Fest"),
		EventDate:       types.StringPtr("04/18/2026"),
		Venue:           types.StringPtr("Moody Center"),
		Location:        types.StringPtr("Austin, TX"),
		Quantity:        types.StringPtr("4"),
		TotalPrice:      types.StringPtr("$120"),
		Last4:           types.StringPtr("4242"),
	}
}
