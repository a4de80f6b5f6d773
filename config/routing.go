package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/types"
	"gopkg.in/yaml.v3"
)

//go:embed routing.yaml
var defaultRoutingTables []byte

// SpreadsheetRef addresses a spreadsheet by id or, when no id is set, by name.
type SpreadsheetRef struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// WorksheetTarget is a spreadsheet selector plus worksheet title.
type WorksheetTarget struct {
	Spreadsheet string `yaml:"spreadsheet"`
	Worksheet   string `yaml:"worksheet"`
}

// WorksheetRule routes origins containing Match to a worksheet.
type WorksheetRule struct {
	Name        string `yaml:"name"`
	Match       string `yaml:"match"`
	Spreadsheet string `yaml:"spreadsheet"`
	Worksheet   string `yaml:"worksheet"`
}

type WorksheetRules struct {
	Default WorksheetTarget `yaml:"default"`
	Rules   []WorksheetRule `yaml:"rules"`
}

// SchemaTable maps worksheet titles to their row schema.
type SchemaTable struct {
	Default    types.RowSchema            `yaml:"default"`
	Worksheets map[string]types.RowSchema `yaml:"worksheets"`
}

// RoutingTables is the process-wide static lookup configuration.
type RoutingTables struct {
	Submitters   map[string]string         `yaml:"submitters"`
	Teams        map[string]string         `yaml:"teams"`
	Spreadsheets map[string]SpreadsheetRef `yaml:"spreadsheets"`
	Worksheets   WorksheetRules            `yaml:"worksheets"`
	Schemas      SchemaTable               `yaml:"schemas"`
}

// LoadRoutingTables reads the tables from path, or the embedded defaults when
// path is empty, and validates them.
func LoadRoutingTables(path string) (*RoutingTables, error) {
	data := defaultRoutingTables
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read routing tables: %w", err)
		}
		data = b
	}
	return ParseRoutingTables(data)
}

// ParseRoutingTables decodes and validates YAML routing tables.
func ParseRoutingTables(data []byte) (*RoutingTables, error) {
	var tables RoutingTables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse routing tables: %w", err)
	}
	if err := tables.validate(); err != nil {
		return nil, fmt.Errorf("invalid routing tables: %w", err)
	}
	return &tables, nil
}

func (t *RoutingTables) validate() error {
	log := logger.GetLogger()

	if len(t.Spreadsheets) == 0 {
		return fmt.Errorf("at least one spreadsheet is required")
	}
	for sel, ref := range t.Spreadsheets {
		if ref.ID == "" && ref.Name == "" {
			return fmt.Errorf("spreadsheet %q needs an id or a name", sel)
		}
	}

	if err := t.checkTarget("default", t.Worksheets.Default.Spreadsheet, t.Worksheets.Default.Worksheet); err != nil {
		return err
	}
	for i, rule := range t.Worksheets.Rules {
		if strings.TrimSpace(rule.Match) == "" {
			return fmt.Errorf("worksheet rule %d has an empty match", i)
		}
		if err := t.checkTarget(fmt.Sprintf("rule %q", rule.Name), rule.Spreadsheet, rule.Worksheet); err != nil {
			return err
		}
	}

	if len(t.Schemas.Default.Columns) == 0 {
		t.Schemas.Default = types.DefaultRowSchema
	}
	if err := checkSchema("default", t.Schemas.Default); err != nil {
		return err
	}
	titles := make(map[string]string, len(t.Schemas.Worksheets))
	for ws, schema := range t.Schemas.Worksheets {
		if err := checkSchema(ws, schema); err != nil {
			return err
		}
		key := strings.ToLower(strings.TrimSpace(ws))
		if other, dup := titles[key]; dup {
			pair := []string{other, ws}
			sort.Strings(pair)
			return fmt.Errorf("schemas %q and %q differ only by case", pair[0], pair[1])
		}
		titles[key] = ws
	}

	// Team ids that are not UUIDs are kept out of the table; their tags resolve
	// as unroutable.
	for tag, id := range t.Teams {
		if _, err := uuid.Parse(id); err != nil {
			log.Warnw("Team routing id is not a valid UUID, tag will be unroutable", "tag", tag, "id", id)
			delete(t.Teams, tag)
		}
	}
	return nil
}

func (t *RoutingTables) checkTarget(name, spreadsheet, worksheet string) error {
	if _, ok := t.Spreadsheets[spreadsheet]; !ok {
		return fmt.Errorf("worksheet target %s references unknown spreadsheet %q", name, spreadsheet)
	}
	if strings.TrimSpace(worksheet) == "" {
		return fmt.Errorf("worksheet target %s has an empty worksheet", name)
	}
	return nil
}

func checkSchema(name string, schema types.RowSchema) error {
	if schema.Version <= 0 {
		return fmt.Errorf("schema %q must have a positive version", name)
	}
	if len(schema.Columns) == 0 {
		return fmt.Errorf("schema %q has no columns", name)
	}
	seen := make(map[string]bool, len(schema.Columns))
	for _, col := range schema.Columns {
		if !types.KnownColumns[col] {
			return fmt.Errorf("schema %q has unknown column %q", name, col)
		}
		if seen[col] {
			return fmt.Errorf("schema %q repeats column %q", name, col)
		}
		seen[col] = true
	}
	return nil
}

// SchemaFor returns the row schema of a worksheet, falling back to the default schema.
func (t *RoutingTables) SchemaFor(worksheet string) types.RowSchema {
	if schema, ok := t.Schemas.Worksheets[worksheet]; ok {
		return schema
	}
	for title, schema := range t.Schemas.Worksheets {
		if strings.EqualFold(title, worksheet) {
			return schema
		}
	}
	return t.Schemas.Default
}
