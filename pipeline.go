package gromozeka

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Verdict is a handler's report back to the pipeline.
type Verdict int

const (
	// Next continues with the following handler.
	Next Verdict = iota
	// Final stops the chain: the message is fully handled.
	Final
	// Skipped means the handler chose not to act; the chain continues.
	Skipped
	// Errored means the handler failed; advisory, the chain continues.
	Errored
	// Fatal stops the chain after an unrecoverable handler failure.
	Fatal
)

// HandlerMeta describes a registered handler: the commands it serves, help
// texts, categories, and its position in the chain.
type HandlerMeta struct {
	Name        string
	Commands    []string
	Description string
	Help        string
	Categories  []string
	Order       int
}

// HandlerFunc processes one envelope.
type HandlerFunc func(ctx context.Context, env *Envelope) (Verdict, error)

// Handler is one entry of the pipeline's explicit registry: a matcher, its
// metadata, and the function to run. Handlers with a nil Match run for
// every message.
type Handler struct {
	Meta  HandlerMeta
	Match func(env *Envelope) bool
	Fn    HandlerFunc
}

// CommandMatch returns a matcher selecting messages that start with any of
// the given /commands.
func CommandMatch(commands ...string) func(env *Envelope) bool {
	return func(env *Envelope) bool {
		text := strings.TrimSpace(env.Text)
		for _, c := range commands {
			if text == "/"+c || strings.HasPrefix(text, "/"+c+" ") || strings.HasPrefix(text, "/"+c+"@") {
				return true
			}
		}
		return false
	}
}

// SpamResult is the spam checker's disposition of a message.
type SpamResult int

const (
	// SpamPass means the message is clean; the pipeline continues.
	SpamPass SpamResult = iota
	// SpamWarned means a warning was issued; the pipeline continues.
	SpamWarned
	// SpamBanned means the sender was banned; the pipeline terminates.
	SpamBanned
)

// SpamChecker decides whether an inbound message is spam and carries out
// the resulting action. The detector package provides the implementation.
type SpamChecker interface {
	Check(ctx context.Context, env *Envelope) (SpamResult, error)
}

// Pipeline is the message orchestrator: it validates inbound messages,
// runs the spam check for group chats, and dispatches the handler chain.
// Messages within one chat are processed in receive order by a dedicated
// worker; messages from distinct chats proceed independently.
type Pipeline struct {
	settings Settings
	checker  SpamChecker
	logger   *slog.Logger
	tracer   Tracer
	delay    *DelayQueue

	mu       sync.Mutex
	handlers []Handler
	workers  map[int64]chan *Envelope
	wg       sync.WaitGroup
	queueLen int
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithSpamChecker enables the spam check for non-private chats.
func WithSpamChecker(c SpamChecker) PipelineOption {
	return func(p *Pipeline) { p.checker = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithTracer enables span creation around pipeline stages.
func WithTracer(t Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = t }
}

// WithDelayQueue sets the queue used for delayed tasks. When unset, the
// pipeline creates its own.
func WithDelayQueue(q *DelayQueue) PipelineOption {
	return func(p *Pipeline) { p.delay = q }
}

// WithQueueLen sets the per-chat worker queue length (default 64).
func WithQueueLen(n int) PipelineOption {
	return func(p *Pipeline) { p.queueLen = n }
}

// NewPipeline creates a pipeline resolving per-chat behavior through
// settings.
func NewPipeline(settings Settings, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		settings: settings,
		logger:   slog.New(slog.DiscardHandler),
		workers:  make(map[int64]chan *Envelope),
		queueLen: 64,
	}
	for _, o := range opts {
		o(p)
	}
	if p.delay == nil {
		p.delay = NewDelayQueue(p.logger)
	}
	return p
}

// Delay exposes the pipeline's delayed-task queue.
func (p *Pipeline) Delay() *DelayQueue { return p.delay }

// Register adds a handler to the chain. Handlers run in ascending Order;
// registration order breaks ties.
func (p *Pipeline) Register(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
	sort.SliceStable(p.handlers, func(i, j int) bool {
		return p.handlers[i].Meta.Order < p.handlers[j].Meta.Order
	})
}

// Handlers returns the registered handler metadata in chain order,
// for help rendering.
func (p *Pipeline) Handlers() []HandlerMeta {
	p.mu.Lock()
	defer p.mu.Unlock()
	metas := make([]HandlerMeta, len(p.handlers))
	for i, h := range p.handlers {
		metas[i] = h.Meta
	}
	return metas
}

// Enqueue routes an envelope to its chat's worker, starting the worker on
// first use. Must not be called after Shutdown.
func (p *Pipeline) Enqueue(ctx context.Context, env *Envelope) {
	p.mu.Lock()
	ch, ok := p.workers[env.Chat.ID]
	if !ok {
		ch = make(chan *Envelope, p.queueLen)
		p.workers[env.Chat.ID] = ch
		p.wg.Add(1)
		go p.work(ctx, ch)
	}
	p.mu.Unlock()

	select {
	case ch <- env:
	case <-ctx.Done():
	}
}

func (p *Pipeline) work(ctx context.Context, ch <-chan *Envelope) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			p.Process(ctx, env)
		}
	}
}

// Run starts the delayed-task loop and blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	p.delay.Run(ctx)
}

// Shutdown closes all worker queues and waits for in-flight messages.
func (p *Pipeline) Shutdown() {
	p.mu.Lock()
	for id, ch := range p.workers {
		close(ch)
		delete(p.workers, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Process runs the full pipeline for one envelope: validate, spam-check in
// group chats with detect-spam enabled, then the handler chain. Every
// handler error or panic is caught and logged; the chain continues unless
// the verdict is Final or Fatal.
func (p *Pipeline) Process(ctx context.Context, env *Envelope) {
	if p.tracer != nil {
		var span Span
		ctx, span = p.tracer.Start(ctx, "pipeline.process",
			Int64Attr("chat.id", env.Chat.ID),
			Int64Attr("message.id", env.MessageID))
		defer span.End()
	}

	if err := env.Validate(); err != nil {
		p.logger.Warn("dropping invalid message", "err", err)
		return
	}

	if p.checker != nil && !env.Chat.IsPrivate() &&
		p.settings.Bool(ctx, env.Chat.ID, KeyDetectSpam) {
		res, err := p.safeCheck(ctx, env)
		if err != nil {
			// Classifier failures never block the message: safe default
			// is not-spam.
			p.logger.Error("spam check failed", "chat", env.Chat.ID, "err", err)
		} else if res == SpamBanned {
			return
		}
	}

	p.dispatch(ctx, env)
}

func (p *Pipeline) safeCheck(ctx context.Context, env *Envelope) (res SpamResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = SpamPass
			p.logger.Error("spam checker panicked", "panic", r)
		}
	}()
	return p.checker.Check(ctx, env)
}

func (p *Pipeline) dispatch(ctx context.Context, env *Envelope) {
	p.mu.Lock()
	handlers := make([]Handler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.Unlock()

	for _, h := range handlers {
		if h.Match != nil && !h.Match(env) {
			continue
		}
		verdict, err := p.safeHandle(ctx, h, env)
		if err != nil {
			p.logger.Error("handler failed", "handler", h.Meta.Name, "err", err)
		}
		switch verdict {
		case Final, Fatal:
			return
		}
	}
}

func (p *Pipeline) safeHandle(ctx context.Context, h Handler, env *Envelope) (v Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = Errored, nil
			p.logger.Error("handler panicked", "handler", h.Meta.Name, "panic", r)
		}
	}()
	return h.Fn(ctx, env)
}
