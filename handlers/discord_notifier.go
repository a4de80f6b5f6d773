package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	apperrors "github.com/ticketdesk/orderbot/errors"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/models/order"
	"github.com/ticketdesk/orderbot/types"
)

// maxFieldValue is the embed field value limit Discord enforces.
const maxFieldValue = 1024

const (
	colorAccepted = 0x2ECC71
	colorRejected = 0xE67E22
	colorFailed   = 0xE74C3C
)

// MessageSender is satisfied by *discordgo.Session.
type MessageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier replies to the submitting message with the outcome.
type DiscordNotifier struct {
	sender MessageSender
}

func NewDiscordNotifier(sender MessageSender) *DiscordNotifier {
	return &DiscordNotifier{sender: sender}
}

func (n *DiscordNotifier) Notify(ctx context.Context, outcome types.Outcome) error {
	sub := outcome.Submission
	_, err := n.sender.ChannelMessageSendComplex(sub.ChannelID, &discordgo.MessageSend{
		Embeds:    []*discordgo.MessageEmbed{OutcomeEmbed(outcome)},
		Reference: messageReference(sub.ChannelID, sub.MessageID),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send outcome reply: %w", err)
	}
	return nil
}

// Reply sends a plain text reply outside the pipeline (busy, throttled).
func (n *DiscordNotifier) Reply(ctx context.Context, channelID, messageID, content string) error {
	_, err := n.sender.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:   content,
		Reference: messageReference(channelID, messageID),
	}, discordgo.WithContext(ctx))
	return err
}

func messageReference(channelID, messageID string) *discordgo.MessageReference {
	if messageID == "" {
		return nil
	}
	return &discordgo.MessageReference{ChannelID: channelID, MessageID: messageID}
}

// OutcomeEmbed renders an outcome for the submitter. Account passwords are
// always masked and service error detail is never shown.
func OutcomeEmbed(outcome types.Outcome) *discordgo.MessageEmbed {
	if outcome.Accepted() {
		return acceptedEmbed(outcome)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Order not logged",
		Description: userMessage(outcome.Err),
		Color:       colorFailed,
	}
	switch apperrors.TypeOf(outcome.Err) {
	case apperrors.EmptyInputError, apperrors.TooIncompleteError:
		embed.Color = colorRejected
	case apperrors.ExtractionFailedError:
		if apperrors.KindOf(outcome.Err) == apperrors.KindNotAnOrder {
			embed.Color = colorRejected
		}
	}
	if outcome.ImagesSkipped > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: imagesSkippedText(outcome.ImagesSkipped)}
	}
	return embed
}

func acceptedEmbed(outcome types.Outcome) *discordgo.MessageEmbed {
	r := outcome.Record
	row := outcome.Row

	fields := []*discordgo.MessageEmbedField{
		field("Event", r.Value(types.FieldEventName), false),
		field("Event Date", r.Value(types.FieldEventDate), true),
		field("Venue", r.Value(types.FieldVenue), true),
		field("Location", r.Value(types.FieldLocation), true),
		field("Quantity", quantityText(r.Value(types.FieldQuantity)), true),
		field("Total Price", r.Value(types.FieldTotalPrice), true),
		field("Account", logger.MaskEmail(r.Value(types.FieldAccountEmail)), true),
		field("Password", logger.MaskSecret(r.Value(types.FieldAccountPassword)), true),
	}
	if unit, ok := unitPriceOf(row); ok {
		fields = append(fields, field("Unit Price", unit, true))
	}
	fields = append(fields, field("Logged To", fmt.Sprintf("%s, row %d", row.Worksheet, row.RowNumber), false))

	var notes []string
	if row.WorksheetFallback {
		notes = append(notes, "logged to the default sheet")
	}
	if row.DateFallback {
		notes = append(notes, "event date unreadable, today's date used")
	}
	if outcome.ImagesSkipped > 0 {
		notes = append(notes, imagesSkippedText(outcome.ImagesSkipped))
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Order logged",
		Description: "Order has been logged successfully!",
		Color:       colorAccepted,
		Fields:      fields,
	}
	if len(notes) > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: strings.Join(notes, " · ")}
	}
	return embed
}

// unitPriceOf reads the unit price cell when the worksheet schema has one.
func unitPriceOf(row *types.RowWritten) (string, bool) {
	if row == nil {
		return "", false
	}
	for i, col := range row.Columns {
		if col == types.ColumnUnitPrice && i < len(row.Values) {
			if s, ok := row.Values[i].(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// quantityText shows the quantity as it is written to the row.
func quantityText(raw string) string {
	if raw == "" {
		return ""
	}
	n, err := order.ParseQuantity(raw)
	if err != nil {
		return raw
	}
	return strconv.Itoa(n)
}

func field(name, value string, inline bool) *discordgo.MessageEmbedField {
	if value == "" {
		value = "-"
	}
	if runes := []rune(value); len(runes) > maxFieldValue {
		value = string(runes[:maxFieldValue-1]) + "…"
	}
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline}
}

func imagesSkippedText(n int) string {
	if n == 1 {
		return "1 image could not be read"
	}
	return fmt.Sprintf("%d images could not be read", n)
}

func userMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.UserMessage()
	}
	return "Failed to log the order. Please try again."
}
