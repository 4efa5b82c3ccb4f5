package flow

import (
	"context"
	"strconv"
	"strings"

	"github.com/ent0n29/docbot/internal/intent"
	"github.com/ent0n29/docbot/internal/protocol"
	"github.com/ent0n29/docbot/internal/session"
	"github.com/ent0n29/docbot/internal/transform"
)

var (
	rotationButtons = []protocol.Button{
		{ID: "btn_rotate_90", Title: "90°"},
		{ID: "btn_rotate_180", Title: "180°"},
		{ID: "btn_rotate_270", Title: "270°"},
	}
	qualityButtons = []protocol.Button{
		{ID: "btn_quality_low", Title: "Low"},
		{ID: "btn_quality_medium", Title: "Medium"},
		{ID: "btn_quality_high", Title: "High"},
	}
	mergeButtons = []protocol.Button{
		{ID: "btn_done", Title: "Done"},
		{ID: "btn_cancel", Title: "Cancel"},
	}
)

func (d *Dispatcher) onText(ctx context.Context, s *session.Session, body string) {
	in := intent.ResolveText(body)
	if in == intent.Cancel {
		d.cancel(ctx, s.SenderID)
		return
	}
	if s.State == session.StateAwaitingInput {
		d.runTwoTurn(ctx, s, body)
		return
	}
	d.onIntent(ctx, s, in, "")
}

func (d *Dispatcher) onReply(ctx context.Context, s *session.Session, reply *protocol.Reply) {
	if reply == nil {
		d.sendFallback(ctx, s.SenderID, "fallback")
		return
	}
	in, buttonID := intent.Unknown, ""
	switch {
	case reply.ButtonID != "":
		in, buttonID = intent.ResolveButton(reply.ButtonID), reply.ButtonID
	case reply.MenuID != "":
		in = intent.ResolveMenu(reply.MenuID)
	}
	if in == intent.Cancel {
		d.cancel(ctx, s.SenderID)
		return
	}
	d.onIntent(ctx, s, in, buttonID)
}

// onIntent is the transition table for everything that is not a file.
// buttonID is set when the intent came from a button tap that may carry a
// parameter value.
func (d *Dispatcher) onIntent(ctx context.Context, s *session.Session, in intent.Intent, buttonID string) {
	to := s.SenderID
	switch in {
	case intent.Greeting:
		d.sendMenu(ctx, to, d.text.Text("greeting"))
	case intent.Help:
		d.say(ctx, to, "help")
		d.sendMenu(ctx, to, d.text.Text("menu_body"))
	case intent.Done:
		switch {
		case s.State == session.StateCollectingFiles && len(s.Files) > 0:
			d.runAccumulate(ctx, s)
		case s.State == session.StateCollectingFiles:
			d.say(ctx, to, "no_images")
		default:
			d.say(ctx, to, "nothing_to_finish")
		}
	case intent.Status:
		if s.State == session.StateCollectingFiles {
			d.say(ctx, to, "status_collecting", len(s.Files))
			return
		}
		d.say(ctx, to, "status_idle")
	case intent.Merge:
		// Asking to merge again mid-collection must not drop the buffer.
		if s.State == session.StateCollectingFiles {
			d.say(ctx, to, "status_collecting", len(s.Files))
			return
		}
		d.startMerge(ctx, s, nil)
	default:
		if in.NeedsFile() {
			d.selectFeature(ctx, s, in, buttonID)
			return
		}
		d.sendFallback(ctx, to, "fallback")
	}
}

func (d *Dispatcher) cancel(ctx context.Context, sender string) {
	d.sessions.Clear(sender)
	d.metrics.SessionEvent("cancelled")
	d.say(ctx, sender, "cancelled")
}

// startMerge enters file collection with an empty buffer, or with first
// already in it.
func (d *Dispatcher) startMerge(ctx context.Context, s *session.Session, first *session.FileRef) {
	files := []session.FileRef{}
	if first != nil {
		files = append(files, *first)
	}
	d.sessions.Update(s.SenderID, session.Patch{
		State:   session.StatePtr(session.StateCollectingFiles),
		Intent:  session.IntentPtr(intent.Merge),
		Files:   &files,
		Pending: session.PendingPtr(nil),
		Params:  session.ParamsPtr(session.Params{}),
	})
	if first != nil {
		d.say(ctx, s.SenderID, "merge_added", 1)
		return
	}
	d.sendButtons(ctx, s.SenderID, "merge_started", mergeButtons)
}

// selectFeature records a file-needing feature. A document left over from an
// earlier turn is consumed right away, otherwise the sender is asked for the
// file.
func (d *Dispatcher) selectFeature(ctx context.Context, s *session.Session, feature intent.Intent, buttonID string) {
	params := s.Params
	if s.Intent != feature {
		params = session.Params{}
	}
	angle, quality := parseButtonParam(buttonID)
	if angle != 0 {
		params.RotationAngle = angle
	}
	if quality != "" {
		params.Quality = quality
	}

	noFiles := []session.FileRef{}
	s = d.sessions.Update(s.SenderID, session.Patch{
		State:  session.StatePtr(session.StateIdle),
		Intent: session.IntentPtr(feature),
		Files:  &noFiles,
		Params: session.ParamsPtr(params),
	})

	if s.Pending != nil {
		// Rotation and quality are asked for before the stored file is used,
		// unless the tap that selected the feature already carried them.
		if buttonID == "" && (feature == intent.Rotate || feature == intent.Compress) {
			d.promptForFile(ctx, s)
			return
		}
		d.acceptPayload(ctx, s, feature, s.Pending)
		return
	}
	d.promptForFile(ctx, s)
}

func (d *Dispatcher) promptForFile(ctx context.Context, s *session.Session) {
	to := s.SenderID
	switch s.Intent {
	case intent.Rotate:
		if s.Params.RotationAngle != 0 {
			d.say(ctx, to, "rotation_set", s.Params.RotationAngle)
			return
		}
		d.sendButtons(ctx, to, "rotation_prompt", rotationButtons)
	case intent.Compress:
		if s.Params.Quality != "" {
			d.say(ctx, to, "quality_set", s.Params.Quality)
			return
		}
		d.sendButtons(ctx, to, "compress_quality_prompt", qualityButtons)
	case intent.Convert, intent.Enhance, intent.RemoveBG:
		d.say(ctx, to, "image_ready", s.Intent.Title())
	case intent.WordToPDF, intent.ExcelToPDF, intent.PPTToPDF:
		d.say(ctx, to, "office_ready", s.Intent.Title())
	default:
		d.say(ctx, to, "feature_ready", s.Intent.Title())
	}
}

func (d *Dispatcher) onFile(ctx context.Context, s *session.Session, media *protocol.Media) {
	to := s.SenderID
	if media == nil || media.ID == "" {
		d.say(ctx, to, "media_missing")
		return
	}
	ref := session.FileRef{MediaID: media.ID, MimeType: media.MimeType, Filename: media.Filename}
	captioned, hasCaption := intent.ResolveCaption(media.Caption)

	if s.State == session.StateCollectingFiles {
		s = d.sessions.AddFile(to, ref)
		d.say(ctx, to, "merge_added", len(s.Files))
		return
	}
	if hasCaption && captioned == intent.Merge {
		d.startMerge(ctx, s, &ref)
		return
	}
	if s.State == session.StateAwaitingInput {
		d.promptForParam(ctx, s)
		return
	}

	feature := s.Intent
	if hasCaption {
		feature = captioned
	}
	switch {
	case feature == intent.Sign && s.Intent == intent.Sign && s.Pending != nil:
		d.runTwoFile(ctx, s, ref)
	case feature == intent.Sign, feature.Deferred():
		payload, ok := d.stash(ctx, s, feature, ref)
		if !ok {
			return
		}
		d.acceptPayload(ctx, s, feature, payload)
	case feature == intent.None:
		if transform.ClassifyDeclared(ref.MimeType, ref.Filename) == transform.KindImage {
			d.runImmediate(ctx, s, intent.Convert, source{ref: &ref})
			return
		}
		payload, ok := d.stash(ctx, s, feature, ref)
		if !ok {
			return
		}
		d.acceptPayload(ctx, s, feature, payload)
	case feature == intent.Merge:
		d.startMerge(ctx, s, &ref)
	default:
		d.runImmediate(ctx, s, feature, source{ref: &ref})
	}
}

// acceptPayload continues a turn once a document is in hand, either freshly
// fetched or left pending from an earlier message.
func (d *Dispatcher) acceptPayload(ctx context.Context, s *session.Session, feature intent.Intent, payload *session.Payload) {
	to := s.SenderID
	switch {
	case feature == intent.None:
		if transform.ClassifyDeclared(payload.MimeType, payload.Filename) == transform.KindOther {
			d.rejectInput(ctx, s, feature, payload, unsupported())
			return
		}
		d.sessions.Update(to, session.Patch{Pending: session.PendingPtr(payload)})
		d.say(ctx, to, "file_received", featureList(payload))
	case feature == intent.Sign:
		if !acceptsPDF(payload) {
			d.rejectInput(ctx, s, feature, payload, needPDF())
			return
		}
		d.sessions.Update(to, session.Patch{
			State:   session.StatePtr(session.StateIdle),
			Intent:  session.IntentPtr(intent.Sign),
			Pending: session.PendingPtr(payload),
		})
		d.say(ctx, to, "sign_send_signature")
	case feature.Deferred():
		if !acceptsPDF(payload) {
			d.rejectInput(ctx, s, feature, payload, needPDF())
			return
		}
		s = d.sessions.Update(to, session.Patch{
			State:   session.StatePtr(session.StateAwaitingInput),
			Intent:  session.IntentPtr(feature),
			Pending: session.PendingPtr(payload),
		})
		d.promptForParam(ctx, s)
	default:
		d.runImmediate(ctx, s, feature, source{payload: payload})
	}
}

func (d *Dispatcher) promptForParam(ctx context.Context, s *session.Session) {
	key := map[intent.Intent]string{
		intent.Split:     "split_prompt",
		intent.Reorder:   "page_order_prompt",
		intent.Lock:      "password_set",
		intent.Unlock:    "enter_password",
		intent.Watermark: "watermark_prompt",
	}[s.Intent]
	if key == "" {
		d.sendFallback(ctx, s.SenderID, "fallback")
		return
	}
	d.say(ctx, s.SenderID, key)
}

// parseButtonParam extracts the value a parametrized button carries. Values
// are passed on unchecked.
func parseButtonParam(id string) (angle int, quality string) {
	switch {
	case strings.HasPrefix(id, "btn_rotate_"):
		angle, _ = strconv.Atoi(strings.TrimPrefix(id, "btn_rotate_"))
	case strings.HasPrefix(id, "btn_quality_"):
		quality = strings.TrimPrefix(id, "btn_quality_")
	}
	return angle, quality
}

// featureList renders the features applicable to a stored document as plain
// text lines the sender can type back.
func featureList(payload *session.Payload) string {
	kind := transform.ClassifyDeclared(payload.MimeType, payload.Filename)
	var lines []string
	for _, section := range intent.Sections() {
		for _, row := range section.Rows {
			if appliesTo(row.Intent, kind) {
				lines = append(lines, "- "+row.Title)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func appliesTo(feature intent.Intent, kind transform.FileKind) bool {
	switch feature {
	case intent.Merge:
		return false
	case intent.Convert, intent.Enhance, intent.RemoveBG:
		return kind == transform.KindImage
	case intent.WordToPDF, intent.ExcelToPDF, intent.PPTToPDF:
		return kind == transform.KindOffice
	}
	return kind == transform.KindPDF || kind == transform.KindOffice
}
