package chat

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/groups"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/tools"
)

const (
	DefaultMaxToolSteps = 1
	DefaultSmoothDelay  = 15 * time.Millisecond

	eventBuffer    = 64
	persistTimeout = 10 * time.Second
)

type Orchestrator struct {
	provider     llm.Provider
	registry     *tools.Registry
	groups       *groups.Resolver
	repairer     *Repairer
	store        store.Store
	publisher    Publisher
	scheduler    SuggestionScheduler
	logger       *zap.Logger
	tracer       trace.Tracer
	maxToolSteps int
	smoothDelay  time.Duration
	now          func() time.Time
}

type Option func(*Orchestrator)

func WithStore(s store.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithSuggestionScheduler(s SuggestionScheduler) Option {
	return func(o *Orchestrator) { o.scheduler = s }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMaxToolSteps bounds model calls in Pass 1. Steps after the first
// let the model decide whether to call more tools.
func WithMaxToolSteps(steps int) Option {
	return func(o *Orchestrator) {
		if steps >= 1 {
			o.maxToolSteps = steps
		}
	}
}

func WithSmoothDelay(delay time.Duration) Option {
	return func(o *Orchestrator) {
		if delay >= 0 {
			o.smoothDelay = delay
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithRepairer(r *Repairer) Option {
	return func(o *Orchestrator) { o.repairer = r }
}

func New(provider llm.Provider, registry *tools.Registry, resolver *groups.Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:     provider,
		registry:     registry,
		groups:       resolver,
		logger:       zap.NewNop(),
		tracer:       otel.Tracer("github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/chat"),
		maxToolSteps: DefaultMaxToolSteps,
		smoothDelay:  DefaultSmoothDelay,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.repairer == nil {
		o.repairer = NewRepairer(provider, registry, o.logger)
	}
	return o
}

// passEvent travels from a pass producer to the consumer.
type passEvent struct {
	pass    int
	kind    string
	payload map[string]any
}

// turn holds the state of one Run.
type turn struct {
	o       *Orchestrator
	req     Request
	chatID  string
	model   string
	cfg     groups.Config
	rc      tools.RequestContext
	allowed map[string]bool
	machine *machine
	logger  *zap.Logger
	out     chan passEvent
}

// emit blocks until the consumer takes the event or ctx ends.
func (t *turn) emit(ctx context.Context, pass int, kind string, payload map[string]any) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case t.out <- passEvent{pass: pass, kind: kind, payload: payload}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run answers one chat turn. Pass 1 lets the model call tools; Pass 2
// writes the answer from the enlarged conversation. Events of both passes
// reach sink through a single consumer, which drops Pass 1's finish so the
// client sees exactly one terminal event.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink Sink) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	chatID := req.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}
	ctx, span := o.tracer.Start(ctx, "chat.run", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("chat.group", req.Group),
		attribute.String("chat.model", req.Model),
	))
	defer span.End()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.ActiveChats.Inc()
	defer metrics.ActiveChats.Dec()

	loc := Location(req.Timezone)
	now := o.now().In(loc)
	cfg := o.groups.Resolve(req.Group, now)
	logger := o.logger.With(
		zap.String("chat_id", chatID),
		zap.String("model", req.Model),
		zap.String("group", cfg.ID))

	t := &turn{
		o:       o,
		req:     req,
		chatID:  chatID,
		model:   llm.ResolveModel(req.Model),
		cfg:     cfg,
		allowed: map[string]bool{},
		machine: newMachine(logger),
		logger:  logger,
		out:     make(chan passEvent, eventBuffer),
	}
	for _, name := range cfg.Tools {
		t.allowed[name] = true
	}
	t.rc = tools.RequestContext{
		Location: loc,
		Now:      now,
		Model:    t.model,
		Annotate: func(kind string, data any) {
			t.emit(ctx, 1, events.TypeAnnotation, map[string]any{"type": kind, "data": data})
		},
	}

	consumed := make(chan error, 1)
	go func() {
		consumed <- t.consume(ctx, cancel, sink, traceID(span))
	}()

	result, runErr := t.produce(ctx)
	close(t.out)
	sinkErr := <-consumed

	result.ChatID = chatID
	result.State = t.machine.current()
	if sinkErr != nil {
		runErr = sinkErr
		t.machine.fail()
		result.State = t.machine.current()
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "chat turn failed")
		logger.Error("chat turn failed", zap.Error(runErr), zap.Any("states", t.machine.path()))
		return result, runErr
	}
	logger.Info("chat turn done", zap.String("finish_reason", result.FinishReason), zap.Int("produced", len(result.Messages)))
	o.afterTurn(ctx, t, result)
	return result, nil
}

// produce runs each pass in its own producer goroutine. Pass 2 starts only
// after Pass 1 has returned.
func (t *turn) produce(ctx context.Context) (Result, error) {
	result := Result{}

	t.machine.to(StatePass1Running)
	pass1 := make(chan passOutcome, 1)
	go func() { pass1 <- t.runPass1(ctx) }()
	first := <-pass1
	if first.err != nil {
		t.fail(ctx, 1, first.err)
		return result, first.err
	}
	t.machine.to(StatePass1Complete)
	result.Messages = append(result.Messages, first.messages...)

	t.machine.to(StatePass2Running)
	pass2 := make(chan passOutcome, 1)
	go func() { pass2 <- t.runPass2(ctx, first.messages) }()
	second := <-pass2
	if second.err != nil {
		t.fail(ctx, 2, second.err)
		return result, second.err
	}
	t.machine.to(StateDone)
	result.Messages = append(result.Messages, second.messages...)
	result.FinishReason = second.finishReason
	return result, nil
}

// fail reports a request-level failure as the terminal error event.
func (t *turn) fail(ctx context.Context, pass int, err error) {
	t.machine.fail()
	if ctx.Err() != nil {
		return
	}
	t.emit(ctx, pass, events.TypeError, map[string]any{"message": GenericErrorMessage})
}

type passOutcome struct {
	messages     []llm.Message
	finishReason string
	err          error
}

func (t *turn) runPass1(ctx context.Context) passOutcome {
	if !t.cfg.HasTools() {
		t.logger.Debug("group has no tools, skipping tool pass")
		return passOutcome{}
	}
	ctx, span := t.o.tracer.Start(ctx, "chat.pass1")
	defer span.End()
	start := time.Now()
	outcome := t.toolSteps(ctx)
	recordPass(span, "1", start, outcome.err)
	return outcome
}

func (t *turn) toolSteps(ctx context.Context) passOutcome {
	specs := t.o.registry.Specs(t.cfg.Tools)
	working := append([]llm.Message(nil), t.req.Messages...)
	var produced []llm.Message
	finish := ""

	for step := 0; step < t.o.maxToolSteps; step++ {
		choice := llm.ToolChoiceRequired
		if step > 0 {
			choice = llm.ToolChoiceAuto
		}
		if !t.emit(ctx, 1, events.TypeStepStart, map[string]any{"step": step}) {
			return passOutcome{err: ctx.Err()}
		}
		stream, err := t.o.provider.Stream(ctx, llm.Request{
			Model:       t.model,
			System:      t.cfg.ToolInstructions,
			Messages:    working,
			Temperature: llm.Temperature(0),
			Tools:       specs,
			ToolChoice:  choice,
		})
		if err != nil {
			return passOutcome{err: err}
		}
		assistant, reason, err := t.forward(ctx, 1, stream)
		if err != nil {
			return passOutcome{err: err}
		}
		finish = reason
		if len(assistant.ToolCalls) == 0 {
			if assistant.Content != "" {
				produced = append(produced, assistant)
			}
			break
		}
		produced = append(produced, assistant)
		working = append(working, assistant)

		invocations := t.executeCalls(ctx, assistant.ToolCalls)
		if ctx.Err() != nil {
			return passOutcome{err: ctx.Err()}
		}
		// Repaired arguments replace what the model first emitted.
		calls := make([]llm.ToolCall, len(invocations))
		for i, inv := range invocations {
			calls[i] = inv.call
		}
		produced[len(produced)-1].ToolCalls = calls
		working[len(working)-1].ToolCalls = calls
		for _, inv := range invocations {
			msg := inv.message()
			produced = append(produced, msg)
			working = append(working, msg)
		}
	}
	return passOutcome{messages: produced, finishReason: finish}
}

func (t *turn) runPass2(ctx context.Context, pass1 []llm.Message) passOutcome {
	ctx, span := t.o.tracer.Start(ctx, "chat.pass2")
	defer span.End()
	start := time.Now()

	messages := make([]llm.Message, 0, len(t.req.Messages)+len(pass1))
	messages = append(messages, t.req.Messages...)
	messages = append(messages, pass1...)

	outcome := func() passOutcome {
		if !t.emit(ctx, 2, events.TypeStepStart, map[string]any{"step": 0}) {
			return passOutcome{err: ctx.Err()}
		}
		stream, err := t.o.provider.Stream(ctx, llm.Request{
			Model:    t.model,
			System:   t.cfg.ResponseGuidelines,
			Messages: messages,
		})
		if err != nil {
			return passOutcome{err: err}
		}
		assistant, reason, err := t.forward(ctx, 2, llm.Smooth(ctx, stream, t.o.smoothDelay))
		if err != nil {
			return passOutcome{err: err}
		}
		if reason == "" {
			reason = "stop"
		}
		if !t.emit(ctx, 2, events.TypeFinish, map[string]any{"finishReason": reason}) {
			return passOutcome{err: ctx.Err()}
		}
		return passOutcome{messages: []llm.Message{assistant}, finishReason: reason}
	}()
	recordPass(span, "2", start, outcome.err)
	return outcome
}

// forward relays a model stream and collects the assistant message. The
// stream's own finish chunk is held back: Pass 1 reports it as a finish
// event the consumer drops, Pass 2 emits its single finish after return.
func (t *turn) forward(ctx context.Context, pass int, stream llm.Stream) (llm.Message, string, error) {
	defer stream.Close()
	msg := llm.Message{Role: llm.RoleAssistant}
	var text []byte
	finish := ""
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return llm.Message{}, "", err
		}
		switch chunk.Type {
		case llm.ChunkTextDelta:
			text = append(text, chunk.Text...)
			if !t.emit(ctx, pass, events.TypeTextDelta, map[string]any{"text": chunk.Text}) {
				return llm.Message{}, "", ctx.Err()
			}
		case llm.ChunkReasoningDelta:
			if !t.emit(ctx, pass, events.TypeReasoningDelta, map[string]any{"text": chunk.Text}) {
				return llm.Message{}, "", ctx.Err()
			}
		case llm.ChunkToolCall:
			if chunk.ToolCall != nil {
				msg.ToolCalls = append(msg.ToolCalls, *chunk.ToolCall)
			}
		case llm.ChunkFinish:
			finish = chunk.FinishReason
		}
	}
	if pass == 1 {
		t.emit(ctx, 1, events.TypeFinish, map[string]any{"finishReason": finish})
	}
	msg.Content = string(text)
	return msg, finish, nil
}

// consume is the only writer to sink. It assigns sequence numbers and
// keeps draining after a sink failure so producers never block.
func (t *turn) consume(ctx context.Context, cancel context.CancelFunc, sink Sink, trace string) error {
	var seq int64
	var sinkErr error
	for ev := range t.out {
		if ev.kind == events.TypeFinish && ev.pass == 1 {
			continue
		}
		if sinkErr != nil {
			continue
		}
		seq++
		event := events.ChatEvent{
			ChatID:  t.chatID,
			Seq:     seq,
			Type:    ev.kind,
			Pass:    ev.pass,
			Ts:      events.Now(),
			TraceID: trace,
			Payload: ev.payload,
		}
		if t.o.publisher != nil {
			t.o.publisher.Publish(event)
		}
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, event); err != nil {
			t.logger.Debug("sink closed", zap.Error(err))
			sinkErr = err
			cancel()
		}
	}
	return sinkErr
}

func recordPass(span trace.Span, pass string, start time.Time, err error) {
	metrics.PassDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "pass "+pass+" failed")
	}
	metrics.PassesTotal.WithLabelValues(pass, status).Inc()
	span.SetAttributes(attribute.String("pass.status", status))
}

func traceID(span trace.Span) string {
	sc := span.SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
