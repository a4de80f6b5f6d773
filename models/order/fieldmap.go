package order

import (
	"context"
	"strings"

	"github.com/ticketdesk/orderbot/config"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/types"
)

// TeamStatus distinguishes the three results of a team lookup.
type TeamStatus int

const (
	TeamFound TeamStatus = iota
	// TeamNotFound means the submitter has no team tag.
	TeamNotFound
	// TeamUnroutable means the tag exists but no task-tracker id is known for it.
	TeamUnroutable
)

func (s TeamStatus) String() string {
	switch s {
	case TeamFound:
		return "found"
	case TeamNotFound:
		return "not_found"
	case TeamUnroutable:
		return "unroutable"
	}
	return "unknown"
}

type TeamLookup struct {
	Status    TeamStatus
	Tag       string
	RoutingID string
}

// WorksheetMatch is the result of matching an origin against worksheet rules.
type WorksheetMatch struct {
	Spreadsheet string
	Worksheet   string
	Matched     bool
	Rule        string
}

type worksheetRule struct {
	name   string
	match  string
	target config.WorksheetTarget
}

// FieldMapper holds the static identity and origin lookup tables. It is built
// once at startup and never mutated.
type FieldMapper struct {
	tables     *config.RoutingTables
	submitters map[string]string
	teams      map[string]string
	rules      []worksheetRule
	fallback   config.WorksheetTarget
	metrics    Metrics
}

func NewFieldMapper(tables *config.RoutingTables, metrics Metrics) *FieldMapper {
	if metrics == nil {
		metrics = NopMetrics{}
	}

	submitters := make(map[string]string, len(tables.Submitters))
	for identity, tag := range tables.Submitters {
		submitters[normalizeKey(identity)] = tag
	}
	teams := make(map[string]string, len(tables.Teams))
	for tag, id := range tables.Teams {
		teams[normalizeKey(tag)] = id
	}
	rules := make([]worksheetRule, 0, len(tables.Worksheets.Rules))
	for _, r := range tables.Worksheets.Rules {
		rules = append(rules, worksheetRule{
			name:   r.Name,
			match:  normalizeKey(r.Match),
			target: config.WorksheetTarget{Spreadsheet: r.Spreadsheet, Worksheet: r.Worksheet},
		})
	}

	return &FieldMapper{
		tables:     tables,
		submitters: submitters,
		teams:      teams,
		rules:      rules,
		fallback:   tables.Worksheets.Default,
		metrics:    metrics,
	}
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TeamTagFor resolves the team tag and task-tracker id of a submitter.
func (m *FieldMapper) TeamTagFor(identity string) TeamLookup {
	tag, ok := m.submitters[normalizeKey(identity)]
	if !ok {
		return TeamLookup{Status: TeamNotFound}
	}
	id, ok := m.teams[normalizeKey(tag)]
	if !ok {
		return TeamLookup{Status: TeamUnroutable, Tag: tag}
	}
	return TeamLookup{Status: TeamFound, Tag: tag, RoutingID: id}
}

// WorksheetFor matches origin against the rules in declared order,
// case-insensitively by substring. With no match it returns the default
// worksheet with Matched false.
func (m *FieldMapper) WorksheetFor(ctx context.Context, origin string) WorksheetMatch {
	o := normalizeKey(origin)
	if o != "" {
		for _, r := range m.rules {
			if strings.Contains(o, r.match) {
				return WorksheetMatch{
					Spreadsheet: r.target.Spreadsheet,
					Worksheet:   r.target.Worksheet,
					Matched:     true,
					Rule:        r.name,
				}
			}
		}
	}

	logger.FromContext(ctx).Warnw("No worksheet rule matched origin, using default worksheet",
		"origin", origin,
		"worksheet", m.fallback.Worksheet,
		"cause", "no_rule")
	m.metrics.WorksheetFallback("no_rule")

	return WorksheetMatch{
		Spreadsheet: m.fallback.Spreadsheet,
		Worksheet:   m.fallback.Worksheet,
	}
}

// DefaultWorksheet is the documented fallback target.
func (m *FieldMapper) DefaultWorksheet() WorksheetMatch {
	return WorksheetMatch{Spreadsheet: m.fallback.Spreadsheet, Worksheet: m.fallback.Worksheet}
}

// Spreadsheet returns the configured reference of a spreadsheet selector.
func (m *FieldMapper) Spreadsheet(selector string) (config.SpreadsheetRef, bool) {
	ref, ok := m.tables.Spreadsheets[selector]
	return ref, ok
}

// SchemaFor returns the row schema of a worksheet.
func (m *FieldMapper) SchemaFor(worksheet string) types.RowSchema {
	return m.tables.SchemaFor(worksheet)
}

// Decide computes the routing decision for an origin.
func (m *FieldMapper) Decide(ctx context.Context, origin string) types.RoutingDecision {
	match := m.WorksheetFor(ctx, origin)
	return types.RoutingDecision{
		Spreadsheet: match.Spreadsheet,
		Worksheet:   match.Worksheet,
		Matched:     match.Matched,
		Rule:        match.Rule,
		Schema:      m.SchemaFor(match.Worksheet),
	}
}
