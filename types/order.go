package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attachment is a chat attachment reference announced by the message source.
type Attachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

// IsImage reports whether the announced content type is an image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.ContentType)), "image/")
}

// Submission is one chat message plus its attachments. It is immutable once
// built and is run through the pipeline exactly once.
type Submission struct {
	ID          uuid.UUID    `json:"id"`
	MessageID   string       `json:"messageId"`
	ChannelID   string       `json:"channelId"`
	Submitter   string       `json:"submitter"`
	Origin      string       `json:"origin"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// NewSubmission assigns a fresh id and copies the attachment slice.
func NewSubmission(messageID, channelID, submitter, origin, text string, attachments []Attachment, createdAt time.Time) Submission {
	atts := make([]Attachment, len(attachments))
	copy(atts, attachments)
	return Submission{
		ID:          uuid.New(),
		MessageID:   messageID,
		ChannelID:   channelID,
		Submitter:   submitter,
		Origin:      origin,
		Text:        strings.TrimSpace(text),
		Attachments: atts,
		CreatedAt:   createdAt,
	}
}

// IsEmpty reports whether the submission has neither text nor attachments.
func (s Submission) IsEmpty() bool {
	return strings.TrimSpace(s.Text) == "" && len(s.Attachments) == 0
}

// OCRFragment is the text recognised from one image attachment, or the reason
// recognition failed.
type OCRFragment struct {
	Attachment Attachment
	Text       string
	Err        error
}

// FusedInput is the submission text plus every successfully recognised fragment,
// in attachment order.
type FusedInput struct {
	RawText      string   `json:"rawText"`
	OCRFragments []string `json:"ocrFragments"`
}

// FuseInput builds a FusedInput, dropping failed or blank fragments.
func FuseInput(rawText string, fragments []OCRFragment) FusedInput {
	texts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f.Err != nil || strings.TrimSpace(f.Text) == "" {
			continue
		}
		texts = append(texts, strings.TrimSpace(f.Text))
	}
	return FusedInput{
		RawText:      strings.TrimSpace(rawText),
		OCRFragments: texts,
	}
}

func (f FusedInput) IsEmpty() bool {
	return f.RawText == "" && len(f.OCRFragments) == 0
}
