package handlers

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/mock"
	"github.com/ticketdesk/orderbot/services"
	"github.com/ticketdesk/orderbot/types"
)

// Shared mocks for the handler tests. Do not redeclare in other test files.

type MockPipelineRunner struct {
	mock.Mock
}

func (m *MockPipelineRunner) Run(ctx context.Context, sub types.Submission) types.Outcome {
	args := m.Called(ctx, sub)
	return args.Get(0).(types.Outcome)
}

// inlineScheduler runs jobs synchronously, or rejects them when full is set.
type inlineScheduler struct {
	full bool
	jobs []services.Job
}

func (s *inlineScheduler) Submit(job services.Job) bool {
	if s.full {
		return false
	}
	s.jobs = append(s.jobs, job)
	_ = job.Execute(context.Background())
	return true
}

type MockClaimer struct {
	mock.Mock
}

func (m *MockClaimer) Claim(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

type MockThrottle struct {
	mock.Mock
}

func (m *MockThrottle) Allow(ctx context.Context, submitter string) (bool, time.Duration) {
	args := m.Called(ctx, submitter)
	return args.Bool(0), args.Get(1).(time.Duration)
}

type MockReplier struct {
	mock.Mock
}

func (m *MockReplier) Reply(ctx context.Context, channelID, messageID, content string) error {
	args := m.Called(ctx, channelID, messageID, content)
	return args.Error(0)
}

type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	args := m.Called(channelID, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*discordgo.Message), args.Error(1)
}
