package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"streambot/internal/domain"
	"streambot/internal/metrics"
)

const (
	twitchIRCURL         = "wss://irc-ws.chat.twitch.tv:443"
	twitchDialTimeout    = 15 * time.Second
	twitchWriteTimeout   = 10 * time.Second
	twitchMaxBackoff     = 60 * time.Second
	twitchInitialBackoff = 2 * time.Second
)

// Twitch implements domain.Channel over the Twitch IRC websocket gateway.
// It joins every channel in its list and republishes PRIVMSGs as chat
// events. Outbound replies go back as PRIVMSG to the originating room.
type Twitch struct {
	token    string // OAuth token, "oauth:" prefix added if missing
	nick     string
	channels []string

	bus    domain.MessageBus
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
}

type TwitchConfig struct {
	Token    string
	Nick     string
	Channels []string // channel names without the "#" prefix
	Logger   *slog.Logger
}

func NewTwitch(cfg TwitchConfig) *Twitch {
	token := cfg.Token
	if token != "" && !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	return &Twitch{
		token:    token,
		nick:     strings.ToLower(cfg.Nick),
		channels: cfg.Channels,
		logger:   cfg.Logger,
	}
}

func (t *Twitch) Name() string { return "twitch" }

// Start connects to the IRC gateway and blocks until ctx is cancelled,
// reconnecting with backoff when the connection drops.
func (t *Twitch) Start(ctx context.Context, bus domain.MessageBus) error {
	if t.token == "" || t.nick == "" {
		return fmt.Errorf("twitch channel requires token and nick")
	}
	if len(t.channels) == 0 {
		return fmt.Errorf("twitch channel has no rooms to join")
	}
	t.bus = bus

	bus.OnOutbound("twitch", func(msg domain.OutboundMessage) {
		if err := t.sendPrivmsg(msg.OriginChannel, msg.Content); err != nil {
			metrics.SendFailures.Inc()
			t.logger.Error("twitch send failed, reply dropped",
				"channel", msg.OriginChannel,
				"err", err,
			)
		}
	})

	backoff := twitchInitialBackoff
	for {
		err := t.runSession(ctx)
		if ctx.Err() != nil {
			t.logger.Info("twitch channel stopping")
			return nil
		}

		t.logger.Warn("twitch connection lost, reconnecting",
			"err", err,
			"backoff", backoff,
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > twitchMaxBackoff {
			backoff = twitchMaxBackoff
		}
	}
}

// runSession performs one connect → authenticate → join → read loop.
func (t *Twitch) runSession(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: twitchDialTimeout}
	conn, _, err := dialer.DialContext(ctx, twitchIRCURL, nil)
	if err != nil {
		return fmt.Errorf("dial twitch irc: %w", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	defer func() {
		t.connMu.Lock()
		t.conn = nil
		t.connMu.Unlock()
		_ = conn.Close()
	}()

	// Close the socket when ctx goes away so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for _, line := range []string{
		"PASS " + t.token,
		"NICK " + t.nick,
	} {
		if err := t.writeLine(line); err != nil {
			return fmt.Errorf("twitch auth: %w", err)
		}
	}
	for _, room := range t.channels {
		if err := t.writeLine("JOIN #" + strings.ToLower(room)); err != nil {
			return fmt.Errorf("join #%s: %w", room, err)
		}
	}
	t.logger.Info("twitch connected", "nick", t.nick, "channels", t.channels)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("twitch read: %w", err)
		}
		// The gateway may pack several IRC lines into one frame.
		for _, line := range strings.Split(string(data), "\r\n") {
			if line == "" {
				continue
			}
			t.handleLine(line)
		}
	}
}

func (t *Twitch) handleLine(line string) {
	if strings.HasPrefix(line, "PING") {
		if err := t.writeLine("PONG" + strings.TrimPrefix(line, "PING")); err != nil {
			t.logger.Warn("twitch pong failed", "err", err)
		}
		return
	}

	msg, ok := parsePrivmsg(line)
	if !ok {
		return
	}
	if msg.author == t.nick {
		return // never react to our own messages
	}

	t.bus.Publish(domain.ChatEvent{
		Platform:      "twitch",
		OriginChannel: msg.channel,
		Author:        msg.author,
		RawContent:    msg.text,
		Timestamp:     time.Now(),
	})
}

// sendPrivmsg writes one chat line to a room. Fails fast when disconnected;
// the reply is dropped rather than queued across reconnects.
func (t *Twitch) sendPrivmsg(room, text string) error {
	return t.writeLine("PRIVMSG #" + strings.ToLower(room) + " :" + text)
}

func (t *Twitch) writeLine(line string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(twitchWriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (t *Twitch) Stop() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn != nil {
		_ = t.conn.Close()
	}
	return nil
}

type privmsg struct {
	author  string
	channel string
	text    string
}

// parsePrivmsg extracts author, room, and text from an IRC PRIVMSG line:
//
//	:nick!nick@nick.tmi.twitch.tv PRIVMSG #room :message text
func parsePrivmsg(line string) (privmsg, bool) {
	if !strings.HasPrefix(line, ":") {
		return privmsg{}, false
	}

	prefix, rest, ok := strings.Cut(line[1:], " ")
	if !ok {
		return privmsg{}, false
	}
	cmd, params, ok := strings.Cut(rest, " ")
	if !ok || cmd != "PRIVMSG" {
		return privmsg{}, false
	}
	target, text, ok := strings.Cut(params, " :")
	if !ok {
		return privmsg{}, false
	}

	author := prefix
	if i := strings.Index(author, "!"); i >= 0 {
		author = author[:i]
	}

	return privmsg{
		author:  strings.ToLower(author),
		channel: strings.TrimPrefix(target, "#"),
		text:    text,
	}, true
}
