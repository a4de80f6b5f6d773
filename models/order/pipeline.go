package order

import (
	"context"
	"time"

	apperrors "github.com/ticketdesk/orderbot/errors"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/types"
)

// Deps wires the pipeline. Tasks, Ledger and Alerter are optional.
type Deps struct {
	Fetcher       AttachmentFetcher
	Recognizer    TextRecognizer
	Extractor     Extractor
	Validator     *Validator
	Mapper        *FieldMapper
	Router        *Router
	Tasks         TaskCreator
	Notifier      Notifier
	Ledger        OutcomeRecorder
	Alerter       Alerter
	Metrics       Metrics
	Clock         func() time.Time
	NotifyTimeout time.Duration
}

// Pipeline runs one submission from fusion to notification. Runs share only
// read-only configuration and may execute concurrently.
type Pipeline struct {
	fetcher       AttachmentFetcher
	recognizer    TextRecognizer
	extractor     Extractor
	validator     *Validator
	mapper        *FieldMapper
	router        *Router
	tasks         TaskCreator
	notifier      Notifier
	ledger        OutcomeRecorder
	alerter       Alerter
	metrics       Metrics
	clock         func() time.Time
	notifyTimeout time.Duration
}

func NewPipeline(deps Deps) *Pipeline {
	p := &Pipeline{
		fetcher:       deps.Fetcher,
		recognizer:    deps.Recognizer,
		extractor:     deps.Extractor,
		validator:     deps.Validator,
		mapper:        deps.Mapper,
		router:        deps.Router,
		tasks:         deps.Tasks,
		notifier:      deps.Notifier,
		ledger:        deps.Ledger,
		alerter:       deps.Alerter,
		metrics:       deps.Metrics,
		clock:         deps.Clock,
		notifyTimeout: deps.NotifyTimeout,
	}
	if p.metrics == nil {
		p.metrics = NopMetrics{}
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.notifyTimeout <= 0 {
		p.notifyTimeout = 10 * time.Second
	}
	return p
}

// Run processes sub and returns its single terminal outcome. The outcome is
// always handed to the notifier.
func (p *Pipeline) Run(ctx context.Context, sub types.Submission) types.Outcome {
	ctx = logger.WithSubmission(ctx, sub.ID.String(), sub.Submitter, sub.Origin)
	out := types.Outcome{Submission: sub, State: types.StateReceived}

	p.process(ctx, &out)
	p.finish(ctx, &out)
	return out
}

func (p *Pipeline) process(ctx context.Context, out *types.Outcome) {
	sub := out.Submission
	if sub.IsEmpty() {
		p.abort(out, apperrors.EmptyInput())
		return
	}

	done := p.enter(ctx, out, types.StateFusing)
	fused, skipped := p.fuse(ctx, sub)
	out.ImagesSkipped = skipped
	done()
	if fused.IsEmpty() {
		logger.FromContext(ctx).Infow("No text survived fusion, nothing to extract", "imagesSkipped", skipped)
		p.abort(out, apperrors.EmptyInput())
		return
	}

	done = p.enter(ctx, out, types.StateExtracting)
	record, err := p.extractor.Extract(ctx, fused)
	done()
	if err != nil {
		if !apperrors.IsType(err, apperrors.ExtractionFailedError) {
			err = apperrors.ExtractionFailed(apperrors.KindServiceUnavailable, err.Error(), err)
		}
		p.abort(out, err)
		return
	}
	out.Record = record

	done = p.enter(ctx, out, types.StateValidating)
	verdict := p.validator.Validate(record)
	done()
	if !verdict.Accepted {
		missing := make([]string, len(verdict.Missing))
		for i, f := range verdict.Missing {
			missing[i] = string(f)
		}
		p.abort(out, apperrors.TooIncomplete(missing))
		return
	}
	if len(verdict.Missing) > 0 {
		logger.FromContext(ctx).Infow("Accepting partial record", "missing", verdict.Missing)
	}

	done = p.enter(ctx, out, types.StateRouting)
	decision := p.mapper.Decide(ctx, sub.Origin)
	out.Decision = &decision
	row, err := p.router.Route(ctx, RouteRequest{Submission: sub, Record: record, Decision: decision})
	done()
	if err != nil {
		if !apperrors.IsType(err, apperrors.RoutingFailedError) {
			err = apperrors.RoutingFailed(apperrors.KindServiceError, err.Error(), err)
		}
		p.abort(out, err)
		return
	}
	out.Row = row

	p.createTask(ctx, out)
}

// fuse recognises image attachments one at a time. Failed attachments are
// omitted and counted.
func (p *Pipeline) fuse(ctx context.Context, sub types.Submission) (types.FusedInput, int) {
	log := logger.FromContext(ctx)
	fragments := make([]types.OCRFragment, 0, len(sub.Attachments))
	skipped := 0

	for _, att := range sub.Attachments {
		if !att.IsImage() {
			log.Debugw("Skipping non-image attachment", "filename", att.Filename, "contentType", att.ContentType)
			p.metrics.OCRFragment("not_image")
			continue
		}

		frag := p.recognize(ctx, att)
		if frag.Err != nil {
			skipped++
			p.metrics.OCRFragment("failed")
			log.Warnw("Image could not be read, omitting it", "filename", att.Filename, "error", frag.Err)
		} else {
			p.metrics.OCRFragment("ok")
		}
		fragments = append(fragments, frag)
	}
	return types.FuseInput(sub.Text, fragments), skipped
}

func (p *Pipeline) recognize(ctx context.Context, att types.Attachment) types.OCRFragment {
	frag := types.OCRFragment{Attachment: att}

	local, err := p.fetcher.Fetch(ctx, att)
	if err != nil {
		frag.Err = err
		return frag
	}
	defer func() {
		if err := local.Release(); err != nil {
			logger.FromContext(ctx).Warnw("Failed to delete downloaded image", "path", local.Path, "error", err)
		}
	}()

	frag.Text, frag.Err = p.recognizer.Recognize(ctx, local)
	return frag
}

func (p *Pipeline) createTask(ctx context.Context, out *types.Outcome) {
	log := logger.FromContext(ctx)
	if p.tasks == nil {
		out.Task.Skipped = "disabled"
		return
	}

	sub := out.Submission
	team := p.mapper.TeamTagFor(sub.Submitter)
	switch team.Status {
	case TeamNotFound:
		log.Infow("Submitter has no team tag, skipping task creation")
		out.Task.Skipped = "team_" + team.Status.String()
		return
	case TeamUnroutable:
		log.Warnw("Team tag has no task routing id, skipping task creation", "tag", team.Tag)
		out.Task.Skipped = "team_" + team.Status.String()
		return
	}

	out.Task.Attempted = true
	id, err := p.tasks.CreateOrderTask(ctx, types.TaskInput{
		SubmissionID:  sub.ID.String(),
		Submitter:     sub.Submitter,
		TeamTag:       team.Tag,
		TeamRoutingID: team.RoutingID,
		SubmittedAt:   sub.CreatedAt,
		Quantity:      NormalizeQuantity(out.Record.Value(types.FieldQuantity)),
	})
	if err != nil {
		out.Task.Err = err
		log.Warnw("Task creation failed, sheet row is kept", "tag", team.Tag, "error", err)
		return
	}
	out.Task.TaskID = id
}

func (p *Pipeline) finish(ctx context.Context, out *types.Outcome) {
	log := logger.FromContext(ctx)

	if out.State != types.StateAborted {
		done := p.enter(ctx, out, types.StateNotifying)
		p.notify(ctx, *out)
		done()
		out.State = types.StateDone
	} else {
		p.notify(ctx, *out)
	}
	out.FinishedAt = p.clock()

	label, reason := "accepted", ""
	if out.Err != nil {
		label = "aborted"
		reason = string(apperrors.TypeOf(out.Err))
		if kind := apperrors.KindOf(out.Err); kind != "" {
			reason += ":" + kind
		}
		log.Infow("Submission aborted", "abortedAt", out.AbortedAt, "reason", reason, "error", out.Err)
	} else {
		log.Infow("Submission logged", "worksheet", out.Row.Worksheet, "row", out.Row.RowNumber, "taskId", out.Task.TaskID)
	}
	p.metrics.SubmissionFinished(label, reason)

	// Terminal side effects must not be cut short by shutdown.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.notifyTimeout)
	defer cancel()

	if apperrors.IsType(out.Err, apperrors.RoutingFailedError) && p.alerter != nil {
		if err := p.alerter.AlertRoutingFailure(bg, *out); err != nil {
			log.Warnw("Failed to send routing failure alert", "error", err)
		}
	}
	if p.ledger != nil {
		if err := p.ledger.Record(bg, *out); err != nil {
			log.Warnw("Failed to record submission outcome", "error", err)
		}
	}
}

func (p *Pipeline) notify(ctx context.Context, out types.Outcome) {
	if p.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.notifyTimeout)
	defer cancel()

	if err := p.notifier.Notify(nctx, out); err != nil {
		logger.LogError(ctx, apperrors.NotificationFailed(err), "Failed to notify submitter", map[string]interface{}{
			"state": out.State,
		})
	}
}

func (p *Pipeline) enter(ctx context.Context, out *types.Outcome, state types.PipelineState) func() {
	out.State = state
	logger.FromContext(ctx).Debugw("Pipeline state transition", "state", state)
	start := time.Now()
	return func() {
		p.metrics.ObserveStage(state, time.Since(start))
	}
}

func (p *Pipeline) abort(out *types.Outcome, err error) {
	out.AbortedAt = out.State
	out.State = types.StateAborted
	out.Err = err
}
