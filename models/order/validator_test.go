package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ticketdesk/orderbot/types"
)

func TestValidator_Threshold(t *testing.T) {
	v := NewValidator(types.DefaultRequiredFields, 3)

	missingThree := fullRecord()
	missingThree.AccountEmail = nil
	missingThree.Location = types.StringPtr("   ")
	missingThree.EventDate = nil

	got := v.Validate(missingThree)
	assert.True(t, got.Accepted)
	assert.Equal(t, []types.Field{types.FieldAccountEmail, types.FieldEventDate, types.FieldLocation}, got.Missing)

	missingFour := fullRecord()
	missingFour.AccountEmail = nil
	missingFour.Location = nil
	missingFour.EventDate = nil
	missingFour.TotalPrice = types.StringPtr("")

	got = v.Validate(missingFour)
	assert.False(t, got.Accepted)
	assert.Len(t, got.Missing, 4)
}

func TestValidator_OptionalFieldsIgnored(t *testing.T) {
	v := NewValidator(types.DefaultRequiredFields, 0)

	rec := fullRecord()
	rec.AccountPassword = nil
	rec.Venue = nil
	rec.Last4 = nil

	got := v.Validate(rec)
	assert.True(t, got.Accepted)
	assert.Empty(t, got.Missing)

	rec.EventName = nil
	assert.False(t, v.Validate(rec).Accepted)
}

func TestValidator_ConfigurableFields(t *testing.T) {
	required := []types.Field{types.FieldEventName, types.FieldTotalPrice}
	v := NewValidator(required, 1)
	required[0] = types.FieldVenue

	rec := &types.OrderRecord{TotalPrice: types.StringPtr("$50")}
	got := v.Validate(rec)
	assert.True(t, got.Accepted)
	assert.Equal(t, []types.Field{types.FieldEventName}, got.Missing)
	assert.Equal(t, []types.Field{types.FieldEventName, types.FieldTotalPrice}, v.Required())
	assert.Equal(t, 1, v.MaxMissing())

	assert.False(t, v.Validate(&types.OrderRecord{}).Accepted)
}
