// Package pipeline wires the ingestion queue, reply resolver, batch
// scheduler, context store, and dispatch client into one explicitly
// constructed object owned by the process lifetime.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"streambot/internal/dispatch"
	"streambot/internal/domain"
	"streambot/internal/history"
	"streambot/internal/metrics"
	"streambot/internal/queue"
	"streambot/internal/resolver"
	"streambot/internal/scheduler"
)

const usageHint = "Please include a message for me to respond to."
const aiUsageHint = "Please provide a prompt after the !ai command."

// Pipeline owns the full ingestion→batching→context→dispatch flow.
type Pipeline struct {
	bus       domain.MessageBus
	generator domain.Generator
	queue     *queue.Queue
	resolver  *resolver.Resolver
	histories *history.Store
	batcher   *scheduler.Batcher
	prefix    string
	logger    *slog.Logger
}

// Config holds the pipeline's dependencies and tuning parameters.
type Config struct {
	Bus       domain.MessageBus
	Generator domain.Generator
	Logger    *slog.Logger

	BotName       string
	CommandPrefix string
	Preamble      string

	BatchSize       int
	BatchPollTime   time.Duration
	IdleInterval    time.Duration
	MaxHistoryTurns int
	MaxHistoryAge   time.Duration
	ChunkSize       int
	MaxTokens       int
}

func New(cfg Config) *Pipeline {
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}

	q := queue.New()
	res := resolver.New(cfg.BotName, cfg.Logger)
	hist := history.NewStore(cfg.MaxHistoryTurns, cfg.MaxHistoryAge)

	disp := dispatch.New(dispatch.Config{
		Generator: cfg.Generator,
		Histories: hist,
		Last:      res,
		Bus:       cfg.Bus,
		Preamble:  cfg.Preamble,
		ChunkSize: cfg.ChunkSize,
		MaxTokens: cfg.MaxTokens,
		Logger:    cfg.Logger,
	})

	batcher := scheduler.New(scheduler.Config{
		Source:       q,
		Dispatcher:   disp,
		BatchSize:    cfg.BatchSize,
		PollTimeout:  cfg.BatchPollTime,
		IdleInterval: cfg.IdleInterval,
		Logger:       cfg.Logger,
	})

	return &Pipeline{
		bus:       cfg.Bus,
		generator: cfg.Generator,
		queue:     q,
		resolver:  res,
		histories: hist,
		batcher:   batcher,
		prefix:    cfg.CommandPrefix,
		logger:    cfg.Logger,
	}
}

// Run starts the scheduler loop and consumes inbound chat events until
// ctx is cancelled or the bus closes.
func (p *Pipeline) Run(ctx context.Context) {
	go p.batcher.Run(ctx)

	inbound := p.bus.Subscribe()
	p.logger.Info("pipeline started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping")
			return
		case evt, ok := <-inbound:
			if !ok {
				p.logger.Info("inbound channel closed, pipeline stopping")
				return
			}
			p.handleEvent(ctx, evt)
		}
	}
}

// handleEvent classifies one chat event and routes it: command handler,
// ingestion queue, usage hint, or silence.
func (p *Pipeline) handleEvent(ctx context.Context, evt domain.ChatEvent) {
	metrics.EventsTotal.Inc()

	if strings.HasPrefix(evt.RawContent, p.prefix) {
		evt.IsCommand = true
	}

	req, action := p.resolver.Resolve(evt)
	switch action {
	case resolver.ActionEnqueue:
		p.enqueue(req)
	case resolver.ActionCommand:
		p.handleCommand(ctx, evt)
	case resolver.ActionDrop:
		metrics.SuppressedTotal.Inc()
	case resolver.ActionUsageHint:
		p.replyTo(evt, usageHint)
	}
}

func (p *Pipeline) enqueue(req domain.PendingRequest) {
	p.queue.Enqueue(req)
	metrics.EnqueuedTotal.Inc()
	metrics.QueueDepth.Set(int64(p.queue.Len()))
}

// handleCommand implements the chat commands. Unknown commands are left
// for other bots in the room.
func (p *Pipeline) handleCommand(ctx context.Context, evt domain.ChatEvent) {
	body := strings.TrimPrefix(evt.RawContent, p.prefix)
	name, rest, _ := strings.Cut(body, " ")

	switch strings.ToLower(name) {
	case "ai":
		prompt := strings.TrimSpace(rest)
		if prompt == "" {
			p.replyTo(evt, aiUsageHint)
			return
		}
		p.enqueue(domain.PendingRequest{
			ID:            uuid.NewString(),
			Prompt:        prompt,
			Author:        evt.Author,
			OriginChannel: evt.OriginChannel,
			Platform:      evt.Platform,
		})
	case "aiinfo":
		infoCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		info, err := p.generator.Info(infoCtx)
		if err != nil {
			p.logger.Warn("model info unavailable", "err", err)
			p.replyTo(evt, "Model info is unavailable right now.")
			return
		}
		p.replyTo(evt, fmt.Sprintf("AI Model: %s | Device: %s | Parameters: %s",
			info.Model, info.Device, info.Parameters))
	}
}

func (p *Pipeline) replyTo(evt domain.ChatEvent, text string) {
	p.bus.SendOutbound(domain.OutboundMessage{
		Platform:      evt.Platform,
		OriginChannel: evt.OriginChannel,
		Content:       "@" + evt.Author + " " + text,
	})
}

// QueueDepth reports the current ingestion queue depth, for status output.
func (p *Pipeline) QueueDepth() int { return p.queue.Len() }

// Authors reports how many distinct authors have conversation history.
func (p *Pipeline) Authors() int { return p.histories.Authors() }
