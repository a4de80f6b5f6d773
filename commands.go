package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"github.com/ticketdesk/orderbot/config"
	apperrors "github.com/ticketdesk/orderbot/errors"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/models/order"
	"github.com/ticketdesk/orderbot/pkg/openai"
	"github.com/ticketdesk/orderbot/services"
	"github.com/ticketdesk/orderbot/types"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "orderbot",
		Short:         "Turns chat purchase confirmations into spreadsheet rows",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.AddCommand(newServeCmd(), newExtractCmd(), newCheckConfigCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and process submissions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, tables, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.Version == "" {
				cfg.Server.Version = version
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, tables)
		},
	}
}

type extractOptions struct {
	text   string
	images []string
	origin string
}

func newExtractCmd() *cobra.Command {
	var opts extractOptions
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Dry-run extraction and validation on local text and images",
		Long: `Runs fusion, extraction, validation and the routing decision on local input.
Nothing is written to the spreadsheet or the task tracker. Credentials are masked in the output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, tables, err := loadConfig()
			if err != nil {
				return err
			}
			return runExtract(cmd.Context(), cfg, tables, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.text, "text", "", "submission text")
	cmd.Flags().StringSliceVar(&opts.images, "image", nil, "path of a screenshot to read (repeatable)")
	cmd.Flags().StringVar(&opts.origin, "origin", "", "origin used for the routing decision")
	return cmd
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate configuration and routing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, tables, err := loadConfig()
			if err != nil {
				return err
			}
			return printConfigSummary(cmd.OutOrStdout(), cfg, tables)
		},
	}
}

func loadConfig() (*config.Config, *config.RoutingTables, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	tables, err := config.LoadRoutingTables(cfg.Pipeline.RoutingTablesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("routing tables invalid: %w", err)
	}
	return cfg, tables, nil
}

type extractReport struct {
	Record        map[string]*string `json:"record"`
	Accepted      bool               `json:"accepted"`
	Missing       []types.Field      `json:"missing"`
	Spreadsheet   string             `json:"spreadsheet"`
	Worksheet     string             `json:"worksheet"`
	RuleMatched   bool               `json:"ruleMatched"`
	ImagesSkipped int                `json:"imagesSkipped"`
}

func runExtract(ctx context.Context, cfg *config.Config, tables *config.RoutingTables, opts extractOptions, out io.Writer) error {
	log := logger.GetLogger()

	required, err := cfg.Pipeline.RequiredFieldList()
	if err != nil {
		return err
	}
	recognizer, err := services.NewRecognizer(ctx, cfg.OCR)
	if err != nil {
		return err
	}
	llm := openai.NewClient(cfg.Extraction.APIKey, openai.WithBaseURL(cfg.Extraction.BaseURL))
	extractor := services.NewExtractionService(llm, cfg.Extraction, required)

	fragments := make([]types.OCRFragment, 0, len(opts.images))
	skipped := 0
	for _, path := range opts.images {
		frag := recognizeLocal(ctx, recognizer, path)
		if frag.Err != nil {
			skipped++
			log.Warnw("Image could not be read, omitting it", "path", path, "error", frag.Err)
		}
		fragments = append(fragments, frag)
	}

	fused := types.FuseInput(opts.text, fragments)
	if fused.IsEmpty() {
		return apperrors.EmptyInput()
	}

	record, err := extractor.Extract(ctx, fused)
	if err != nil {
		return err
	}
	verdict := order.NewValidator(required, cfg.Pipeline.MaxMissing).Validate(record)
	decision := order.NewFieldMapper(tables, nil).Decide(ctx, opts.origin)

	report := extractReport{
		Record:        maskedRecord(record),
		Accepted:      verdict.Accepted,
		Missing:       verdict.Missing,
		Spreadsheet:   decision.Spreadsheet,
		Worksheet:     decision.Worksheet,
		RuleMatched:   decision.Matched,
		ImagesSkipped: skipped,
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// recognizeLocal reads a file the operator owns. It is never released.
func recognizeLocal(ctx context.Context, recognizer services.Recognizer, path string) types.OCRFragment {
	att := types.Attachment{Filename: filepath.Base(path)}

	info, err := os.Stat(path)
	if err != nil {
		return types.OCRFragment{Attachment: att, Err: err}
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return types.OCRFragment{Attachment: att, Err: err}
	}
	att.ContentType = mt.String()
	att.Size = int(info.Size())
	if !strings.HasPrefix(mt.String(), "image/") {
		return types.OCRFragment{Attachment: att, Err: services.ErrNotImage}
	}

	local := types.NewLocalAttachment(att, path, mt.String(), info.Size())
	text, err := recognizer.Recognize(ctx, local)
	return types.OCRFragment{Attachment: att, Text: text, Err: err}
}

func maskedRecord(record *types.OrderRecord) map[string]*string {
	out := make(map[string]*string, len(types.AllFields))
	for _, f := range types.AllFields {
		v, ok := record.Get(f)
		if !ok {
			out[string(f)] = nil
			continue
		}
		switch f {
		case types.FieldAccountPassword:
			v = logger.MaskSecret(v)
		case types.FieldAccountEmail:
			v = logger.MaskEmail(v)
		}
		out[string(f)] = types.StringPtr(v)
	}
	return out
}

func printConfigSummary(out io.Writer, cfg *config.Config, tables *config.RoutingTables) error {
	required, err := cfg.Pipeline.RequiredFieldList()
	if err != nil {
		return err
	}
	names := make([]string, len(required))
	for i, f := range required {
		names[i] = string(f)
	}

	worksheets := make([]string, 0, len(tables.Schemas.Worksheets))
	for ws := range tables.Schemas.Worksheets {
		worksheets = append(worksheets, ws)
	}
	sort.Strings(worksheets)

	w := func(format string, a ...interface{}) {
		fmt.Fprintf(out, format+"\n", a...)
	}
	w("environment:      %s", cfg.Server.Environment)
	w("command prefix:   %s", cfg.Discord.CommandPrefix)
	w("extraction model: %s", cfg.Extraction.Model)
	w("ocr provider:     %s (%s)", cfg.OCR.Provider, cfg.OCR.Model)
	w("required fields:  %s (max missing %d)", strings.Join(names, ", "), cfg.Pipeline.MaxMissing)
	w("origin rules:     %d", len(tables.Worksheets.Rules))
	w("schemas:          %s (default v%d)", strings.Join(worksheets, ", "), tables.Schemas.Default.Version)
	w("default sheet:    %s / %s", tables.Worksheets.Default.Spreadsheet, tables.Worksheets.Default.Worksheet)
	w("submitters:       %d mapped to %d teams", len(tables.Submitters), len(tables.Teams))
	w("clickup:          %t", cfg.ClickUp.Enabled)
	w("redis:            %t", cfg.Redis.Enabled)
	w("outcome ledger:   %t (%s)", cfg.Database.Enabled, logger.MaskConnectionString(cfg.Database.URL))
	w("email alerts:     %t", cfg.Email.Enabled)
	return nil
}
