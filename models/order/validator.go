package order

import "github.com/ticketdesk/orderbot/types"

// Validation is the verdict of the completeness policy.
type Validation struct {
	Accepted bool
	Missing  []types.Field
}

// Validator accepts a record unless more than maxMissing of the required
// fields are null or blank.
type Validator struct {
	required   []types.Field
	maxMissing int
}

func NewValidator(required []types.Field, maxMissing int) *Validator {
	fields := make([]types.Field, len(required))
	copy(fields, required)
	return &Validator{required: fields, maxMissing: maxMissing}
}

func (v *Validator) Validate(record *types.OrderRecord) Validation {
	missing := record.Missing(v.required)
	return Validation{
		Accepted: len(missing) <= v.maxMissing,
		Missing:  missing,
	}
}

// Required returns the fields counted by the policy.
func (v *Validator) Required() []types.Field {
	out := make([]types.Field, len(v.required))
	copy(out, v.required)
	return out
}

func (v *Validator) MaxMissing() int {
	return v.maxMissing
}
