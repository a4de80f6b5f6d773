package types

import "strings"

// Field names the keys of the extraction schema. The string value is the exact
// key the extraction service is asked to return.
type Field string

const (
	FieldAccountEmail    Field = "Account Email"
	FieldAccountPassword Field = "Account Password"
	FieldEventName       Field = "Event Name"
	FieldEventDate       Field = "Event Date"
	FieldVenue           Field = "Venue"
	FieldLocation        Field = "Location"
	FieldQuantity        Field = "Quantity of Tickets"
	FieldTotalPrice      Field = "Total Price"
	FieldLast4           Field = "Last 4"
)

// AllFields is the fixed extraction schema in prompt order.
var AllFields = []Field{
	FieldAccountEmail,
	FieldAccountPassword,
	FieldEventName,
	FieldEventDate,
	FieldVenue,
	FieldLocation,
	FieldQuantity,
	FieldTotalPrice,
	FieldLast4,
}

// DefaultRequiredFields are the fields a record must carry as keys and that the
// completeness policy counts.
var DefaultRequiredFields = []Field{
	FieldAccountEmail,
	FieldEventName,
	FieldEventDate,
	FieldLocation,
	FieldQuantity,
	FieldTotalPrice,
}

// ParseField resolves a field name case-insensitively. "Last 4 of card" is
// accepted for FieldLast4.
func ParseField(name string) (Field, bool) {
	n := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if n == "last 4 of card" || n == "last four" {
		return FieldLast4, true
	}
	for _, f := range AllFields {
		if strings.ToLower(string(f)) == n {
			return f, true
		}
	}
	return "", false
}

// OrderRecord is a candidate purchase order. Every schema field is always a
// member; nil means the service returned null.
type OrderRecord struct {
	AccountEmail    *string `json:"Account Email"`
	AccountPassword *string `json:"Account Password"`
	EventName       *string `json:"Event Name"`
	EventDate       *string `json:"Event Date"`
	Venue           *string `json:"Venue"`
	Location        *string `json:"Location"`
	Quantity        *string `json:"Quantity of Tickets"`
	TotalPrice      *string `json:"Total Price"`
	Last4           *string `json:"Last 4"`
}

func (r *OrderRecord) slot(f Field) **string {
	switch f {
	case FieldAccountEmail:
		return &r.AccountEmail
	case FieldAccountPassword:
		return &r.AccountPassword
	case FieldEventName:
		return &r.EventName
	case FieldEventDate:
		return &r.EventDate
	case FieldVenue:
		return &r.Venue
	case FieldLocation:
		return &r.Location
	case FieldQuantity:
		return &r.Quantity
	case FieldTotalPrice:
		return &r.TotalPrice
	case FieldLast4:
		return &r.Last4
	}
	return nil
}

// Get returns the trimmed value of f. ok is false for null or blank values.
func (r *OrderRecord) Get(f Field) (string, bool) {
	if r == nil {
		return "", false
	}
	p := r.slot(f)
	if p == nil || *p == nil {
		return "", false
	}
	v := strings.TrimSpace(**p)
	return v, v != ""
}

// Value returns Get's value, empty when missing.
func (r *OrderRecord) Value(f Field) string {
	v, _ := r.Get(f)
	return v
}

// Set stores v for f; a nil v stores null.
func (r *OrderRecord) Set(f Field, v *string) {
	if p := r.slot(f); p != nil {
		*p = v
	}
}

// Missing returns the fields of fields whose value is null or blank, in order.
func (r *OrderRecord) Missing(fields []Field) []Field {
	var missing []Field
	for _, f := range fields {
		if _, ok := r.Get(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// StringPtr is a helper for building records in code.
func StringPtr(s string) *string {
	return &s
}
