// Package flow drives each sender's conversation: it resolves what a message
// asks for, moves the sender's session through its states and runs document
// pipelines when enough input has been collected.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/ent0n29/docbot/internal/intent"
	"github.com/ent0n29/docbot/internal/messages"
	"github.com/ent0n29/docbot/internal/observability"
	"github.com/ent0n29/docbot/internal/policy"
	"github.com/ent0n29/docbot/internal/protocol"
	"github.com/ent0n29/docbot/internal/session"
	"github.com/ent0n29/docbot/internal/transform"
)

const (
	DefaultMaxFileBytes    int64 = 10 << 20
	DefaultMaxMergeBytes   int64 = 50 << 20
	DefaultPipelineTimeout       = 2 * time.Minute

	defaultRotation = 90
	defaultQuality  = "medium"
	// Longer OCR results are sent as a text file instead of a chat message.
	maxInlineText = 3500
)

type Options struct {
	MaxFileBytes    int64
	MaxMergeBytes   int64
	PipelineTimeout time.Duration
	Logger          *slog.Logger
	Metrics         *observability.Metrics
	Now             func() time.Time
}

type Dispatcher struct {
	sessions *session.Manager
	chat     ChatClient
	engine   transform.Engine
	convLog  ConversionLog
	text     *messages.Catalog

	maxFileBytes    int64
	maxMergeBytes   int64
	pipelineTimeout time.Duration
	logger          *slog.Logger
	metrics         *observability.Metrics
	now             func() time.Time
}

func NewDispatcher(
	sessions *session.Manager,
	chat ChatClient,
	engine transform.Engine,
	convLog ConversionLog,
	text *messages.Catalog,
	opts Options,
) *Dispatcher {
	d := &Dispatcher{
		sessions:        sessions,
		chat:            chat,
		engine:          engine,
		convLog:         convLog,
		text:            text,
		maxFileBytes:    opts.MaxFileBytes,
		maxMergeBytes:   opts.MaxMergeBytes,
		pipelineTimeout: opts.PipelineTimeout,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		now:             opts.Now,
	}
	if d.maxFileBytes <= 0 {
		d.maxFileBytes = DefaultMaxFileBytes
	}
	if d.maxMergeBytes <= 0 {
		d.maxMergeBytes = DefaultMaxMergeBytes
	}
	if d.pipelineTimeout <= 0 {
		d.pipelineTimeout = DefaultPipelineTimeout
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "flow")
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Handle processes one inbound message. It never returns an error: every
// failure is answered to the sender and logged.
func (d *Dispatcher) Handle(ctx context.Context, in protocol.Inbound) {
	if in.From == "" {
		return
	}
	d.metrics.Inbound(string(in.Kind))
	d.notify(ctx, in.From, "mark_seen", func(ctx context.Context) error {
		return d.chat.MarkSeenAndTyping(ctx, in.From, in.ID)
	})

	// An empty patch refreshes the idle timer, replacing an expired record.
	s := d.sessions.Update(in.From, session.Patch{})
	d.logger.Debug("inbound message",
		"sender", policy.MaskSender(in.From),
		"kind", in.Kind,
		"state", s.State,
		"intent", s.Intent,
	)

	switch in.Kind {
	case protocol.KindText:
		d.onText(ctx, s, in.Text)
	case protocol.KindImage, protocol.KindFile:
		d.onFile(ctx, s, in.Media)
	case protocol.KindReply:
		d.onReply(ctx, s, in.Reply)
	default:
		d.sendFallback(ctx, in.From, "unsupported_kind")
	}
	d.metrics.SetActiveSessions(d.sessions.ActiveCount())
}

// notify sends a secondary message whose failure must not change the outcome
// of the turn. Errors are logged and dropped.
func (d *Dispatcher) notify(ctx context.Context, to, op string, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		d.logger.Debug("notification dropped", "op", op, "sender", policy.MaskSender(to), "error", err)
	}
}

func (d *Dispatcher) say(ctx context.Context, to, key string, args ...any) {
	text := d.text.Text(key, args...)
	d.notify(ctx, to, "send_text", func(ctx context.Context) error {
		return d.chat.SendText(ctx, to, text)
	})
}

func (d *Dispatcher) sendButtons(ctx context.Context, to, key string, buttons []protocol.Button) {
	text := d.text.Text(key)
	d.notify(ctx, to, "send_buttons", func(ctx context.Context) error {
		return d.chat.SendButtons(ctx, to, text, buttons)
	})
}

func (d *Dispatcher) sendFallback(ctx context.Context, to, key string) {
	d.sendButtons(ctx, to, key, []protocol.Button{
		{ID: "btn_convert", Title: intent.Convert.Title()},
		{ID: "btn_compress", Title: intent.Compress.Title()},
		{ID: "btn_merge", Title: intent.Merge.Title()},
	})
}

// sendMenu sends the feature list, split over as many list messages as the
// platform's row limit requires. body overrides the first page's text.
func (d *Dispatcher) sendMenu(ctx context.Context, to, body string) {
	for i, page := range intent.MenuPages() {
		menu := protocol.Menu{
			Body:        d.text.Text("menu_more"),
			ButtonLabel: d.text.Text("menu_button"),
			Footer:      d.text.Text("menu_footer"),
		}
		if i == 0 {
			menu.Body = body
			menu.Header = d.text.Text("menu_header")
		}
		for _, section := range page {
			ms := protocol.MenuSection{Title: section.Title}
			for _, row := range section.Rows {
				ms.Rows = append(ms.Rows, protocol.MenuRow{ID: row.ID, Title: row.Title, Description: row.Description})
			}
			menu.Sections = append(menu.Sections, ms)
		}
		d.notify(ctx, to, "send_menu", func(ctx context.Context) error {
			return d.chat.SendMenu(ctx, to, menu)
		})
	}
}
