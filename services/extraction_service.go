package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ticketdesk/orderbot/config"
	apperrors "github.com/ticketdesk/orderbot/errors"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/pkg/openai"
	"github.com/ticketdesk/orderbot/types"
)

// NotAnOrderSentinel is what the extraction service answers with when the
// input is not a purchase order.
const NotAnOrderSentinel = "INPUT_ERROR_CODE"

const extractionSystemPrompt = "You are a helpful assistant that extracts ticket purchase orders."

// ChatCompleter is satisfied by *openai.Client.
type ChatCompleter interface {
	Complete(ctx context.Context, req openai.ChatRequest) (string, error)
}

// ExtractionService turns fused submission text into an OrderRecord with one
// request to the language service.
type ExtractionService struct {
	client      ChatCompleter
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	required    []types.Field
}

func NewExtractionService(client ChatCompleter, cfg config.ExtractionConfig, required []types.Field) *ExtractionService {
	req := make([]types.Field, len(required))
	copy(req, required)
	return &ExtractionService{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		required:    req,
	}
}

var fieldGuidance = map[types.Field]string{
	types.FieldAccountEmail:    "The email address of the purchaser",
	types.FieldAccountPassword: "The account password. If unsure, use any chunk with words, numbers and symbols",
	types.FieldEventName:       "The name of the event",
	types.FieldEventDate:       "The event date in MM/DD/YYYY format",
	types.FieldVenue:           "The venue name",
	types.FieldLocation:        "City and State as 'City, ST' with the two letter state code",
	types.FieldQuantity: "The number of tickets purchased as a bare integer (8 for 8x, qty 8, 8 tickets). " +
		"If the text content gives a quantity, prefer it over the image text",
	types.FieldTotalPrice: "The total price in dollars, prefixed with $",
	types.FieldLast4:      "The last 4 digits of the card that made the purchase",
}

// BuildPrompt renders the extraction instruction for input.
func BuildPrompt(input types.FusedInput) string {
	var b strings.Builder
	b.WriteString("Extract the following fields from the provided data and return them as a single JSON object. ")
	fmt.Fprintf(&b, "If the data is not a ticket purchase order, respond only with %q.\n\n", NotAnOrderSentinel)
	for _, f := range types.AllFields {
		fmt.Fprintf(&b, "- %s: %s\n", f, fieldGuidance[f])
	}
	b.WriteString("\nData:\n\nText Content:\n")
	b.WriteString(input.RawText)
	b.WriteString("\n\nOCR Data:\n")
	for i, frag := range input.OCRFragments {
		fmt.Fprintf(&b, "[Image %d]\n%s\n", i+1, frag)
	}
	b.WriteString("\nInclude every key in the JSON object, using null when a value is unknown.")
	return b.String()
}

// Extract requests a record for input. It makes no call for empty input.
func (s *ExtractionService) Extract(ctx context.Context, input types.FusedInput) (*types.OrderRecord, error) {
	if input.IsEmpty() {
		return nil, apperrors.EmptyInput()
	}

	log := logger.FromContext(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := s.client.Complete(ctx, openai.ChatRequest{
		Model:       s.model,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		Messages: []openai.Message{
			openai.TextMessage(openai.RoleSystem, extractionSystemPrompt),
			openai.TextMessage(openai.RoleUser, BuildPrompt(input)),
		},
	})
	if err != nil {
		log.Warnw("Extraction request failed", "error", err, "duration", time.Since(start))
		return nil, apperrors.ExtractionFailed(apperrors.KindServiceUnavailable, err.Error(), err)
	}

	log.Debugw("Extraction response received", "duration", time.Since(start), "length", len(raw))
	return ParseResponse(raw, s.required)
}

// ParseResponse decodes the service's answer into a record. Every key in
// required must be present, possibly null.
func ParseResponse(raw string, required []types.Field) (*types.OrderRecord, error) {
	if strings.Contains(raw, NotAnOrderSentinel) {
		return nil, apperrors.ExtractionFailed(apperrors.KindNotAnOrder, "service reported a non-order input", nil)
	}

	body := stripToObject(raw)
	if body == "" {
		return nil, malformed("no JSON object in response", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, malformed("response is not a JSON object", err)
	}

	// Keys are visited in sorted order. The exact field key wins over an alias;
	// two aliases of one field are malformed.
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	record := &types.OrderRecord{}
	source := make(map[types.Field]string, len(fields))
	present := make(map[types.Field]bool, len(fields))
	for _, key := range keys {
		f, ok := types.ParseField(key)
		if !ok {
			continue
		}
		if prev, dup := source[f]; dup {
			switch {
			case prev == string(f):
				continue
			case key != string(f):
				return nil, malformed(fmt.Sprintf("keys %q and %q both name field %q", prev, key, f), nil)
			}
		}
		v, err := scalarValue(fields[key])
		if err != nil {
			return nil, malformed(fmt.Sprintf("field %q: %v", f, err), err)
		}
		source[f] = key
		present[f] = true
		record.Set(f, v)
	}

	var absent []string
	for _, f := range required {
		if !present[f] {
			absent = append(absent, string(f))
		}
	}
	if len(absent) > 0 {
		return nil, malformed("missing keys: "+strings.Join(absent, ", "), nil)
	}

	return record, nil
}

func malformed(detail string, raw error) *apperrors.AppError {
	return apperrors.ExtractionFailed(apperrors.KindMalformedResponse, detail, raw)
}

// stripToObject drops code fences and prose around the outermost {...}.
func stripToObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return ""
	}
	return raw[start : end+1]
}

func scalarValue(raw json.RawMessage) (*string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case '{', '[':
		return nil, fmt.Errorf("nested values are not allowed")
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		s := strconv.FormatBool(b)
		return &s, nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		s := n.String()
		return &s, nil
	}
}
