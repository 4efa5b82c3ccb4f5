package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ent0n29/docbot/internal/conversions"
	"github.com/ent0n29/docbot/internal/messages"
	"github.com/ent0n29/docbot/internal/protocol"
	"github.com/ent0n29/docbot/internal/session"
	"github.com/ent0n29/docbot/internal/transform"
)

const sender = "919876543210"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type outbound struct {
	kind     string
	to       string
	text     string
	buttons  []protocol.Button
	menu     protocol.Menu
	mediaID  string
	filename string
	caption  string
}

type upload struct {
	data     []byte
	mime     string
	filename string
}

type fakeChat struct {
	mu        sync.Mutex
	media     map[string][]byte
	fetchErr  error
	uploadErr error
	uploads   []upload
	sent      []outbound
	seen      []string
}

func newFakeChat() *fakeChat {
	return &fakeChat{media: make(map[string][]byte)}
}

func (c *fakeChat) FetchMedia(_ context.Context, mediaID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	data, ok := c.media[mediaID]
	if !ok {
		return nil, fmt.Errorf("media %s not found", mediaID)
	}
	return data, nil
}

func (c *fakeChat) UploadMedia(_ context.Context, data []byte, mime, filename string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uploadErr != nil {
		return "", c.uploadErr
	}
	c.uploads = append(c.uploads, upload{data: data, mime: mime, filename: filename})
	return fmt.Sprintf("out-%d", len(c.uploads)), nil
}

func (c *fakeChat) SendText(_ context.Context, to, text string) error {
	return c.push(outbound{kind: "text", to: to, text: text})
}

func (c *fakeChat) SendButtons(_ context.Context, to, text string, buttons []protocol.Button) error {
	return c.push(outbound{kind: "buttons", to: to, text: text, buttons: buttons})
}

func (c *fakeChat) SendMenu(_ context.Context, to string, menu protocol.Menu) error {
	return c.push(outbound{kind: "menu", to: to, text: menu.Body, menu: menu})
}

func (c *fakeChat) SendDocument(_ context.Context, to, mediaID, filename, caption string) error {
	return c.push(outbound{kind: "document", to: to, mediaID: mediaID, filename: filename, caption: caption})
}

func (c *fakeChat) SendImage(_ context.Context, to, mediaID, caption string) error {
	return c.push(outbound{kind: "image", to: to, mediaID: mediaID, caption: caption})
}

func (c *fakeChat) MarkSeenAndTyping(_ context.Context, _, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, messageID)
	return nil
}

func (c *fakeChat) push(o outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, o)
	return nil
}

func (c *fakeChat) ofKind(kind string) []outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []outbound
	for _, o := range c.sent {
		if o.kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func (c *fakeChat) last() outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return outbound{}
	}
	return c.sent[len(c.sent)-1]
}

func (c *fakeChat) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, o := range c.sent {
		if o.text != "" {
			out = append(out, o.text)
		}
	}
	return out
}

type engineCall struct {
	op    string
	data  []byte
	items []transform.Input
	param string
	angle int
	extra transform.Input
}

type fakeEngine struct {
	mu      sync.Mutex
	calls   []engineCall
	err     error
	ocrText string
	pages   [][]byte
}

func (e *fakeEngine) record(c engineCall) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, c)
	if e.err != nil {
		return nil, e.err
	}
	return []byte("%PDF-1.7 " + c.op), nil
}

func (e *fakeEngine) ops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.calls))
	for _, c := range e.calls {
		out = append(out, c.op)
	}
	return out
}

func (e *fakeEngine) call(i int) engineCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[i]
}

func (e *fakeEngine) ImageToPDF(_ context.Context, img transform.Input, quality string) ([]byte, error) {
	return e.record(engineCall{op: "image_to_pdf", data: img.Data, param: quality})
}

func (e *fakeEngine) CompressPDF(_ context.Context, pdf []byte, quality string) ([]byte, error) {
	return e.record(engineCall{op: "compress_pdf", data: pdf, param: quality})
}

func (e *fakeEngine) Merge(_ context.Context, items []transform.Input) ([]byte, error) {
	return e.record(engineCall{op: "merge", items: items})
}

func (e *fakeEngine) Split(_ context.Context, pdf []byte, pages string) ([]byte, error) {
	return e.record(engineCall{op: "split", data: pdf, param: pages})
}

func (e *fakeEngine) Rotate(_ context.Context, pdf []byte, angle int) ([]byte, error) {
	return e.record(engineCall{op: "rotate", data: pdf, angle: angle})
}

func (e *fakeEngine) Reorder(_ context.Context, pdf []byte, order string) ([]byte, error) {
	return e.record(engineCall{op: "reorder", data: pdf, param: order})
}

func (e *fakeEngine) Lock(_ context.Context, pdf []byte, password string) ([]byte, error) {
	return e.record(engineCall{op: "lock", data: pdf, param: password})
}

func (e *fakeEngine) Unlock(_ context.Context, pdf []byte, password string) ([]byte, error) {
	return e.record(engineCall{op: "unlock", data: pdf, param: password})
}

func (e *fakeEngine) AddPageNumbers(_ context.Context, pdf []byte) ([]byte, error) {
	return e.record(engineCall{op: "page_numbers", data: pdf})
}

func (e *fakeEngine) Watermark(_ context.Context, pdf []byte, text string) ([]byte, error) {
	return e.record(engineCall{op: "watermark", data: pdf, param: text})
}

func (e *fakeEngine) Sign(_ context.Context, pdf []byte, signature transform.Input) ([]byte, error) {
	return e.record(engineCall{op: "sign", data: pdf, extra: signature})
}

func (e *fakeEngine) Archive(_ context.Context, pdf []byte) ([]byte, error) {
	return e.record(engineCall{op: "archive", data: pdf})
}

func (e *fakeEngine) OCR(_ context.Context, doc transform.Input) (string, error) {
	if _, err := e.record(engineCall{op: "ocr", data: doc.Data}); err != nil {
		return "", err
	}
	return e.ocrText, nil
}

func (e *fakeEngine) Enhance(_ context.Context, img transform.Input) ([]byte, error) {
	return e.record(engineCall{op: "enhance", data: img.Data})
}

func (e *fakeEngine) RemoveBackground(_ context.Context, img transform.Input) ([]byte, error) {
	return e.record(engineCall{op: "remove_bg", data: img.Data})
}

func (e *fakeEngine) PDFToWord(_ context.Context, pdf []byte) ([]byte, error) {
	return e.record(engineCall{op: "pdf_to_word", data: pdf})
}

func (e *fakeEngine) PDFToImages(_ context.Context, pdf []byte) ([][]byte, error) {
	if _, err := e.record(engineCall{op: "pdf_to_image", data: pdf}); err != nil {
		return nil, err
	}
	return e.pages, nil
}

func (e *fakeEngine) PDFToPPT(_ context.Context, pdf []byte) ([]byte, error) {
	return e.record(engineCall{op: "pdf_to_ppt", data: pdf})
}

func (e *fakeEngine) PDFToExcel(_ context.Context, pdf []byte) ([]byte, error) {
	return e.record(engineCall{op: "pdf_to_excel", data: pdf})
}

func (e *fakeEngine) OfficeToPDF(_ context.Context, doc transform.Input) ([]byte, error) {
	return e.record(engineCall{op: "office_to_pdf", data: doc.Data})
}

type fakeLog struct {
	mu      sync.Mutex
	records []conversions.Record
	err     error
}

func (l *fakeLog) Record(_ context.Context, rec conversions.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return l.err
}

func (l *fakeLog) all() []conversions.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]conversions.Record(nil), l.records...)
}

type harness struct {
	t        *testing.T
	d        *Dispatcher
	chat     *fakeChat
	engine   *fakeEngine
	log      *fakeLog
	sessions *session.Manager
	clock    *fakeClock
	text     *messages.Catalog
	seq      int
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	cat, err := messages.Load("en")
	require.NoError(t, err)

	h := &harness{
		t:        t,
		chat:     newFakeChat(),
		engine:   &fakeEngine{},
		log:      &fakeLog{},
		sessions: session.NewManager(10*time.Minute, session.WithClock(clock.Now)),
		clock:    clock,
		text:     cat,
	}
	opts.Now = clock.Now
	h.d = NewDispatcher(h.sessions, h.chat, h.engine, h.log, cat, opts)
	return h
}

func (h *harness) nextID() string {
	h.seq++
	return fmt.Sprintf("wamid.%d", h.seq)
}

func (h *harness) send(in protocol.Inbound) *session.Session {
	h.t.Helper()
	if in.From == "" {
		in.From = sender
	}
	in.ID = h.nextID()
	h.d.Handle(context.Background(), in)
	s := h.sessions.GetOrCreate(in.From)
	if s.State == session.StateCollectingFiles {
		require.Equal(h.t, "merge", string(s.Intent), "collecting files outside a merge")
	}
	return s
}

func (h *harness) sendText(body string) *session.Session {
	return h.send(protocol.Inbound{Kind: protocol.KindText, Text: body})
}

func (h *harness) sendButton(id string) *session.Session {
	return h.send(protocol.Inbound{Kind: protocol.KindReply, Reply: &protocol.Reply{ButtonID: id}})
}

func (h *harness) sendMenuPick(id string) *session.Session {
	return h.send(protocol.Inbound{Kind: protocol.KindReply, Reply: &protocol.Reply{MenuID: id}})
}

// sendFile registers data under a fresh media id and delivers it as an
// image or document depending on mime.
func (h *harness) sendFile(data []byte, mime, filename, caption string) *session.Session {
	mediaID := fmt.Sprintf("media-%d", h.seq+1)
	h.chat.mu.Lock()
	h.chat.media[mediaID] = data
	h.chat.mu.Unlock()
	kind := protocol.KindFile
	if len(mime) > 6 && mime[:6] == "image/" {
		kind = protocol.KindImage
	}
	return h.send(protocol.Inbound{
		Kind:  kind,
		Media: &protocol.Media{ID: mediaID, MimeType: mime, Filename: filename, Caption: caption},
	})
}

func (h *harness) sendPDF(data string) *session.Session {
	return h.sendFile([]byte(data), "application/pdf", "doc.pdf", "")
}

func (h *harness) sendImage(data string, caption string) *session.Session {
	return h.sendFile([]byte(data), "image/jpeg", "", caption)
}

var errBoom = errors.New("ghostscript exited with status 1")
