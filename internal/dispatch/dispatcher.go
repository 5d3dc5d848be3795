// Package dispatch fans batched requests out to the generation backend
// and routes replies back to the originating chat channel.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"streambot/internal/domain"
	"streambot/internal/metrics"
)

// FallbackText is substituted for the reply when the backend call fails.
// The failure is isolated to the one request; history and last-response
// state stay untouched.
const FallbackText = "Sorry, I couldn't generate a response at this time."

const (
	defaultChunkSize = 500
	defaultPreamble  = "You are a helpful AI assistant. Provide concise responses."
)

// Histories is the conversation context consulted and updated around each
// backend call.
type Histories interface {
	History(author string) []domain.Turn
	AppendExchange(author string, user, assistant domain.Turn)
}

// LastResponses receives the assistant text for reply threading.
type LastResponses interface {
	SetLastResponse(author, text string)
}

// Dispatcher issues one backend call per batched request, concurrently,
// and joins before the batch is considered complete.
type Dispatcher struct {
	generator domain.Generator
	histories Histories
	last      LastResponses
	bus       domain.MessageBus
	preamble  string
	chunkSize int
	maxTokens int
	logger    *slog.Logger
}

type Config struct {
	Generator domain.Generator
	Histories Histories
	Last      LastResponses
	Bus       domain.MessageBus
	Preamble  string // system turn prepended to every prompt
	ChunkSize int    // outbound messages longer than this are split
	MaxTokens int
	Logger    *slog.Logger
}

func New(cfg Config) *Dispatcher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Preamble == "" {
		cfg.Preamble = defaultPreamble
	}
	return &Dispatcher{
		generator: cfg.Generator,
		histories: cfg.Histories,
		last:      cfg.Last,
		bus:       cfg.Bus,
		preamble:  cfg.Preamble,
		chunkSize: cfg.ChunkSize,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Dispatch processes every request in the batch concurrently and returns
// once all of them have produced either a reply or the fallback text.
func (d *Dispatcher) Dispatch(ctx context.Context, batch domain.Batch) {
	metrics.BatchesTotal.Inc()

	var wg sync.WaitGroup
	for _, req := range batch {
		wg.Add(1)
		go func(req domain.PendingRequest) {
			defer wg.Done()
			d.dispatchOne(ctx, req)
		}(req)
	}
	wg.Wait()
}

// dispatchOne runs the read → generate → write sequence for one request.
// History is read before the call and written only after success, so a
// failed call never pollutes history with text the backend never produced.
func (d *Dispatcher) dispatchOne(ctx context.Context, req domain.PendingRequest) {
	metrics.DispatchesTotal.Inc()
	start := time.Now()

	turns := make([]domain.Turn, 0, 8)
	turns = append(turns, domain.Turn{Role: domain.RoleSystem, Content: d.preamble})
	turns = append(turns, d.histories.History(req.Author)...)
	turns = append(turns, domain.Turn{Role: domain.RoleUser, Content: req.Prompt})

	resp, err := d.generator.Generate(ctx, domain.GenerateRequest{
		Messages:  turns,
		Author:    req.Author,
		MaxTokens: d.maxTokens,
	})

	var text string
	if err != nil {
		metrics.DispatchFailures.Inc()
		d.logger.Error("generation failed",
			"request_id", req.ID,
			"author", req.Author,
			"err", err,
		)
		text = FallbackText
	} else {
		text = resp.Content
		d.histories.AppendExchange(req.Author,
			domain.Turn{Content: req.Prompt},
			domain.Turn{Content: text},
		)
		d.last.SetLastResponse(req.Author, text)
		metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	}

	d.reply(req, "@"+req.Author+" "+text)
}

// reply sends the outbound text, split into ordered chunks. A failed chunk
// is the channel's problem; the dispatcher never blocks on delivery.
func (d *Dispatcher) reply(req domain.PendingRequest, text string) {
	for _, chunk := range Chunk(text, d.chunkSize) {
		d.bus.SendOutbound(domain.OutboundMessage{
			Platform:      req.Platform,
			OriginChannel: req.OriginChannel,
			Content:       chunk,
		})
	}
}

// Chunk splits text into rune-boundary pieces of at most size runes,
// preserving order. Chat platforms cap message length; Twitch truncates
// at 500.
func Chunk(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
