package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ticketdesk/orderbot/config"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/services"
	"github.com/ticketdesk/orderbot/types"
)

const (
	busyReply      = "I'm processing too many orders right now. Please resend this one in a minute."
	throttledReply = "You're sending orders too quickly. Please wait %s and try again."
)

// PipelineRunner runs one submission to a terminal outcome.
type PipelineRunner interface {
	Run(ctx context.Context, sub types.Submission) types.Outcome
}

// JobScheduler is satisfied by *services.WorkerPool.
type JobScheduler interface {
	Submit(job services.Job) bool
}

// MessageClaimer is satisfied by *services.DedupService.
type MessageClaimer interface {
	Claim(ctx context.Context, messageID string) (bool, error)
}

// SubmitterThrottle is satisfied by *services.SubmissionThrottle.
type SubmitterThrottle interface {
	Allow(ctx context.Context, submitter string) (bool, time.Duration)
}

// Replier sends a plain reply to a message.
type Replier interface {
	Reply(ctx context.Context, channelID, messageID, content string) error
}

// DiscordHandler turns prefixed chat messages into submissions and schedules
// them on the worker pool. Dedup and throttle are optional.
type DiscordHandler struct {
	prefix   string
	channels map[string]bool
	pipeline PipelineRunner
	pool     JobScheduler
	replier  Replier
	dedup    MessageClaimer
	throttle SubmitterThrottle
	now      func() time.Time
	origin   func(s *discordgo.Session, guildID string) string
}

type DiscordHandlerOption func(*DiscordHandler)

func WithDedup(d MessageClaimer) DiscordHandlerOption {
	return func(h *DiscordHandler) { h.dedup = d }
}

func WithThrottle(t SubmitterThrottle) DiscordHandlerOption {
	return func(h *DiscordHandler) { h.throttle = t }
}

func NewDiscordHandler(cfg config.DiscordConfig, pipeline PipelineRunner, pool JobScheduler, replier Replier, opts ...DiscordHandlerOption) *DiscordHandler {
	channels := make(map[string]bool, len(cfg.AllowedChannels))
	for _, id := range cfg.AllowedChannels {
		if id = strings.TrimSpace(id); id != "" {
			channels[id] = true
		}
	}
	h := &DiscordHandler{
		prefix:   strings.TrimSpace(cfg.CommandPrefix),
		channels: channels,
		pipeline: pipeline,
		pool:     pool,
		replier:  replier,
		now:      time.Now,
		origin:   guildName,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnMessageCreate is registered with the discordgo session.
func (h *DiscordHandler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if s != nil && s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	// Resolving the guild may cost a REST call, so other chatter stops here.
	if _, ok := h.stripPrefix(m.Content); !ok {
		return
	}
	h.HandleMessage(context.Background(), m.Message, h.origin(s, m.GuildID))
}

// HandleMessage is OnMessageCreate without the session. It returns true when
// a submission was scheduled.
func (h *DiscordHandler) HandleMessage(ctx context.Context, msg *discordgo.Message, origin string) bool {
	if msg.Author == nil || msg.Author.Bot {
		return false
	}
	text, ok := h.stripPrefix(msg.Content)
	if !ok {
		return false
	}
	if len(h.channels) > 0 && !h.channels[msg.ChannelID] {
		return false
	}

	submitter := msg.Author.Username
	log := logger.GetLogger().With("messageId", msg.ID, "submitter", submitter, "origin", origin)

	if h.dedup != nil {
		first, err := h.dedup.Claim(ctx, msg.ID)
		if err != nil {
			log.Warnw("Message dedup unavailable, processing anyway", "error", err)
		} else if !first {
			log.Infow("Duplicate message delivery ignored")
			return false
		}
	}

	if h.throttle != nil {
		if ok, retryAfter := h.throttle.Allow(ctx, submitter); !ok {
			log.Infow("Submission throttled", "retryAfter", retryAfter)
			h.reply(ctx, msg, fmt.Sprintf(throttledReply, retryAfter.Round(time.Second)))
			return false
		}
	}

	createdAt := msg.Timestamp
	if createdAt.IsZero() {
		createdAt = h.now()
	}
	sub := types.NewSubmission(msg.ID, msg.ChannelID, submitter, origin, text, attachmentsOf(msg), createdAt)

	job := services.Job{
		Name: "submission:" + sub.ID.String(),
		Execute: func(ctx context.Context) error {
			h.pipeline.Run(ctx, sub)
			return nil
		},
	}
	if !h.pool.Submit(job) {
		log.Warnw("Submission queue full, rejecting", "submissionId", sub.ID)
		h.reply(ctx, msg, busyReply)
		return false
	}

	log.Infow("Submission scheduled",
		"submissionId", sub.ID,
		"attachments", len(sub.Attachments),
		"textLength", len(sub.Text))
	return true
}

// stripPrefix returns the text after the command prefix. The prefix must be
// followed by whitespace or the end of the message.
func (h *DiscordHandler) stripPrefix(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if h.prefix == "" || !strings.HasPrefix(strings.ToLower(content), strings.ToLower(h.prefix)) {
		return "", false
	}
	rest := content[len(h.prefix):]
	if rest != "" && !strings.ContainsAny(rest[:1], " \t\r\n") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func (h *DiscordHandler) reply(ctx context.Context, msg *discordgo.Message, content string) {
	if h.replier == nil {
		return
	}
	if err := h.replier.Reply(ctx, msg.ChannelID, msg.ID, content); err != nil {
		logger.GetLogger().Warnw("Failed to reply", "messageId", msg.ID, "error", err)
	}
}

func attachmentsOf(msg *discordgo.Message) []types.Attachment {
	out := make([]types.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		if a == nil {
			continue
		}
		out = append(out, types.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return out
}

// guildName resolves the origin of a message. Direct messages have no guild.
func guildName(s *discordgo.Session, guildID string) string {
	if guildID == "" {
		return "direct"
	}
	if s == nil {
		return guildID
	}
	if s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil && g.Name != "" {
			return g.Name
		}
	}
	if g, err := s.Guild(guildID); err == nil && g.Name != "" {
		return g.Name
	}
	return guildID
}
