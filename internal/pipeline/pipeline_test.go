package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"streambot/internal/bus"
	"streambot/internal/domain"
)

// echoGenerator replies "echo: <last user turn>" and records every prompt
// it was asked to complete.
type echoGenerator struct {
	mu      sync.Mutex
	prompts []domain.GenerateRequest
	fail    bool
}

func (g *echoGenerator) Generate(_ context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req)
	fail := g.fail
	g.mu.Unlock()

	if fail {
		return nil, errors.New("backend down")
	}
	last := req.Messages[len(req.Messages)-1]
	return &domain.GenerateResponse{Content: "echo: " + last.Content}, nil
}

func (g *echoGenerator) Name() string { return "echo" }

func (g *echoGenerator) Info(context.Context) (domain.ModelInfo, error) {
	return domain.ModelInfo{Model: "tiny-echo", Device: "cpu", Parameters: "0"}, nil
}

func (g *echoGenerator) Healthy(context.Context) error { return nil }

func (g *echoGenerator) requests() []domain.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.GenerateRequest, len(g.prompts))
	copy(out, g.prompts)
	return out
}

// outboundCapture collects replies routed through the bus.
type outboundCapture struct {
	mu     sync.Mutex
	msgs   []domain.OutboundMessage
	notify chan struct{}
}

func newOutboundCapture() *outboundCapture {
	return &outboundCapture{notify: make(chan struct{}, 64)}
}

func (c *outboundCapture) handle(msg domain.OutboundMessage) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.notify <- struct{}{}
}

func (c *outboundCapture) waitFor(t *testing.T, n int, timeout time.Duration) []domain.OutboundMessage {
	t.Helper()
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		if len(c.msgs) >= n {
			out := make([]domain.OutboundMessage, len(c.msgs))
			copy(out, c.msgs)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.notify:
		case <-deadline:
			c.mu.Lock()
			got := len(c.msgs)
			c.mu.Unlock()
			t.Fatalf("timed out waiting for %d outbound messages, got %d", n, got)
		}
	}
}

func (c *outboundCapture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func startTestPipeline(t *testing.T, gen domain.Generator, batchSize int) (*bus.InMemoryBus, *outboundCapture) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.New(32, logger)
	cap := newOutboundCapture()
	b.OnOutbound("test", cap.handle)

	p := New(Config{
		Bus:             b,
		Generator:       gen,
		Logger:          logger,
		BotName:         "streambot",
		CommandPrefix:   "!",
		BatchSize:       batchSize,
		BatchPollTime:   10 * time.Millisecond,
		IdleInterval:    10 * time.Millisecond,
		MaxHistoryTurns: 3,
		MaxHistoryAge:   time.Hour,
		ChunkSize:       500,
		MaxTokens:       100,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go p.Run(ctx)
	return b, cap
}

func event(author, content string) domain.ChatEvent {
	return domain.ChatEvent{
		Platform:      "test",
		OriginChannel: "room",
		Author:        author,
		RawContent:    content,
		Timestamp:     time.Now(),
	}
}

func TestPipeline_RepliesToEachAuthor(t *testing.T) {
	gen := &echoGenerator{}
	b, cap := startTestPipeline(t, gen, 2)

	b.Publish(event("alice", "hello there"))
	b.Publish(event("bob", "how are you"))
	b.Publish(event("carol", "what time is it"))

	msgs := cap.waitFor(t, 3, 5*time.Second)

	want := map[string]string{
		"alice": "@alice echo: hello there",
		"bob":   "@bob echo: how are you",
		"carol": "@carol echo: what time is it",
	}
	for _, msg := range msgs {
		author := strings.TrimPrefix(strings.SplitN(msg.Content, " ", 2)[0], "@")
		if msg.Content != want[author] {
			t.Fatalf("reply for %s = %q, want %q", author, msg.Content, want[author])
		}
		delete(want, author)
	}
	if len(want) != 0 {
		t.Fatalf("authors never answered: %v", want)
	}
}

func TestPipeline_MentionThreadsPreviousReply(t *testing.T) {
	gen := &echoGenerator{}
	b, cap := startTestPipeline(t, gen, 5)

	b.Publish(event("alice", "hello"))
	cap.waitFor(t, 1, 5*time.Second)

	b.Publish(event("alice", "@StreamBot and now?"))
	cap.waitFor(t, 2, 5*time.Second)

	reqs := gen.requests()
	if len(reqs) != 2 {
		t.Fatalf("generator calls = %d, want 2", len(reqs))
	}
	prompt := reqs[1].Messages[len(reqs[1].Messages)-1].Content
	if !strings.Contains(prompt, "Earlier you said: echo: hello") {
		t.Fatalf("threaded prompt missing previous reply: %q", prompt)
	}
	if !strings.Contains(prompt, "Now the user says: and now?") {
		t.Fatalf("threaded prompt missing new message: %q", prompt)
	}
}

func TestPipeline_AICommand(t *testing.T) {
	gen := &echoGenerator{}
	b, cap := startTestPipeline(t, gen, 5)

	b.Publish(event("alice", "!ai tell me a joke"))

	msgs := cap.waitFor(t, 1, 5*time.Second)
	if msgs[0].Content != "@alice echo: tell me a joke" {
		t.Fatalf("reply = %q", msgs[0].Content)
	}
}

func TestPipeline_AICommandWithoutPrompt(t *testing.T) {
	gen := &echoGenerator{}
	b, cap := startTestPipeline(t, gen, 5)

	b.Publish(event("alice", "!ai"))

	msgs := cap.waitFor(t, 1, 5*time.Second)
	if msgs[0].Content != "@alice "+aiUsageHint {
		t.Fatalf("reply = %q", msgs[0].Content)
	}
	if len(gen.requests()) != 0 {
		t.Fatal("bare !ai must not reach the backend")
	}
}

func TestPipeline_AIInfoCommand(t *testing.T) {
	gen := &echoGenerator{}
	b, cap := startTestPipeline(t, gen, 5)

	b.Publish(event("alice", "!aiinfo"))

	msgs := cap.waitFor(t, 1, 5*time.Second)
	if msgs[0].Content != "@alice AI Model: tiny-echo | Device: cpu | Parameters: 0" {
		t.Fatalf("reply = %q", msgs[0].Content)
	}
}

func TestPipeline_UnknownCommandIgnored(t *testing.T) {
	gen := &echoGenerator{}
	b, cap := startTestPipeline(t, gen, 5)

	b.Publish(event("alice", "!uptime"))
	b.Publish(event("alice", "hello"))

	msgs := cap.waitFor(t, 1, 5*time.Second)
	if msgs[0].Content != "@alice echo: hello" {
		t.Fatalf("reply = %q", msgs[0].Content)
	}
	if cap.count() != 1 {
		t.Fatalf("unknown command must stay silent, got %d messages", cap.count())
	}
}

func TestPipeline_SuppressesMessagesForOtherUsers(t *testing.T) {
	gen := &echoGenerator{}
	b, cap := startTestPipeline(t, gen, 5)

	b.Publish(event("alice", "@bob did you see that"))
	b.Publish(event("alice", "a real question"))

	msgs := cap.waitFor(t, 1, 5*time.Second)
	if msgs[0].Content != "@alice echo: a real question" {
		t.Fatalf("reply = %q", msgs[0].Content)
	}
	if cap.count() != 1 {
		t.Fatalf("@bob message must be suppressed, got %d messages", cap.count())
	}
}

func TestPipeline_EmptyMentionGetsUsageHint(t *testing.T) {
	gen := &echoGenerator{}
	b, cap := startTestPipeline(t, gen, 5)

	b.Publish(event("alice", "@streambot"))

	msgs := cap.waitFor(t, 1, 5*time.Second)
	if msgs[0].Content != "@alice "+usageHint {
		t.Fatalf("reply = %q", msgs[0].Content)
	}
	if len(gen.requests()) != 0 {
		t.Fatal("empty mention must not reach the backend")
	}
}

func TestPipeline_BackendFailureSendsFallback(t *testing.T) {
	gen := &echoGenerator{fail: true}
	b, cap := startTestPipeline(t, gen, 5)

	b.Publish(event("alice", "hello"))

	msgs := cap.waitFor(t, 1, 5*time.Second)
	if !strings.Contains(msgs[0].Content, "Sorry, I couldn't generate a response") {
		t.Fatalf("reply = %q, want fallback text", msgs[0].Content)
	}
}
