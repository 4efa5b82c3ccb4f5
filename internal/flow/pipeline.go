package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/docbot/internal/conversions"
	"github.com/ent0n29/docbot/internal/intent"
	"github.com/ent0n29/docbot/internal/policy"
	"github.com/ent0n29/docbot/internal/session"
	"github.com/ent0n29/docbot/internal/transform"
)

// inputError rejects a request before any transform runs. key names the
// catalog text shown to the sender.
type inputError struct {
	key  string
	args []any
	err  error
}

func (e *inputError) Error() string {
	if e.err != nil {
		return e.key + ": " + e.err.Error()
	}
	return e.key
}

func (e *inputError) Unwrap() error { return e.err }

func needPDF() *inputError   { return &inputError{key: "pdf_required"} }
func needImage() *inputError { return &inputError{key: "image_required"} }

func unsupported() *inputError {
	return &inputError{key: "unsupported_format", args: []any{"PDF, image or Office document"}}
}

// deliveryError marks a failure to hand a finished result back to the sender.
type deliveryError struct {
	op  string
	err error
}

func (e *deliveryError) Error() string { return e.op + ": " + e.err.Error() }

func (e *deliveryError) Unwrap() error { return e.err }

// attempt accumulates what the conversion log should say about one run.
type attempt struct {
	id          string
	feature     intent.Intent
	inputType   string
	inputBytes  int64
	outputType  string
	outputBytes int64
}

func newAttempt(feature intent.Intent) *attempt {
	return &attempt{id: uuid.NewString(), feature: feature}
}

func (a *attempt) observeInput(p *session.Payload) {
	if p == nil {
		return
	}
	a.inputBytes += int64(len(p.Data))
	if a.inputType == "" {
		a.inputType = p.MimeType
	}
}

func (a *attempt) featureName() string {
	if a.feature == intent.None {
		return "unassigned"
	}
	return string(a.feature)
}

// source is where a pipeline's document comes from: a media reference still
// to be fetched, or a payload stored on an earlier turn.
type source struct {
	ref     *session.FileRef
	payload *session.Payload
}

// runPipeline executes steps for one conversion attempt. Whatever happens,
// the attempt is logged, the sender gets a reply and the session ends idle.
func (d *Dispatcher) runPipeline(ctx context.Context, sender string, feature intent.Intent, steps func(context.Context, *attempt) error) {
	a := newAttempt(feature)
	logger := d.logger.With("conversion_id", a.id, "sender", policy.MaskSender(sender), "feature", a.featureName())
	start := d.now()

	defer d.sessions.Clear(sender)
	d.sessions.Update(sender, session.Patch{State: session.StatePtr(session.StateProcessing)})
	d.metrics.SessionEvent("pipeline_started")
	d.record(ctx, sender, a, conversions.StatusPending, "", 0)

	runCtx, cancel := context.WithTimeout(ctx, d.pipelineTimeout)
	err := runSteps(runCtx, a, steps)
	cancel()
	elapsed := d.now().Sub(start)

	status, errText := conversions.StatusSuccess, ""
	if err != nil {
		status, errText = d.reportFailure(ctx, sender, err)
		logger.Warn("pipeline failed", "status", status, "error", err, "elapsed_ms", elapsed.Milliseconds())
	} else {
		logger.Info("pipeline completed",
			"input_bytes", a.inputBytes,
			"output_bytes", a.outputBytes,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}
	d.record(ctx, sender, a, status, errText, elapsed)
	d.metrics.ObservePipeline(a.featureName(), string(status), elapsed)
}

func runSteps(ctx context.Context, a *attempt, steps func(context.Context, *attempt) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return steps(ctx, a)
}

// reportFailure answers the sender according to the error class and returns
// the status and error text to log.
func (d *Dispatcher) reportFailure(ctx context.Context, sender string, err error) (conversions.Status, string) {
	var ie *inputError
	var de *deliveryError
	switch {
	case errors.As(err, &ie):
		d.say(ctx, sender, ie.key, ie.args...)
		return conversions.StatusFailed, err.Error()
	case errors.As(err, &de):
		d.say(ctx, sender, "processing_failed")
		return conversions.StatusDeliveryFailed, err.Error()
	}
	if v, ok := transform.AsValidation(err); ok {
		text := v.Message
		if text == "" && d.text.Has(v.Code) {
			text = d.text.Text(v.Code)
		}
		if text == "" {
			text = d.text.Text("processing_failed")
		}
		d.notify(ctx, sender, "send_text", func(ctx context.Context) error {
			return d.chat.SendText(ctx, sender, text)
		})
		return conversions.StatusFailed, err.Error()
	}
	d.say(ctx, sender, "processing_failed")
	return conversions.StatusFailed, err.Error()
}

// rejectInput ends a turn that failed validation outside a pipeline run.
func (d *Dispatcher) rejectInput(ctx context.Context, s *session.Session, feature intent.Intent, payload *session.Payload, ie *inputError) {
	a := newAttempt(feature)
	a.observeInput(payload)
	d.logger.Info("input rejected", "conversion_id", a.id, "sender", policy.MaskSender(s.SenderID), "feature", a.featureName(), "reason", ie.Error())
	d.record(ctx, s.SenderID, a, conversions.StatusFailed, ie.Error(), 0)
	d.metrics.ObservePipeline(a.featureName(), string(conversions.StatusFailed), 0)
	d.sessions.Clear(s.SenderID)
	d.say(ctx, s.SenderID, ie.key, ie.args...)
}

func (d *Dispatcher) record(ctx context.Context, sender string, a *attempt, status conversions.Status, errText string, elapsed time.Duration) {
	if d.convLog == nil {
		return
	}
	rec := conversions.Record{
		ID:           a.id,
		Sender:       sender,
		Status:       status,
		Feature:      a.featureName(),
		InputType:    a.inputType,
		OutputType:   a.outputType,
		InputBytes:   a.inputBytes,
		OutputBytes:  a.outputBytes,
		ProcessingMS: elapsed.Milliseconds(),
		Error:        errText,
	}
	if err := d.convLog.Record(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Warn("conversion log write failed", "conversion_id", a.id, "error", err)
	}
}

// load returns the document for src, fetching it when needed, and enforces
// the single-file size cap.
func (d *Dispatcher) load(ctx context.Context, src source) (*session.Payload, error) {
	if src.payload != nil {
		if int64(len(src.payload.Data)) > d.maxFileBytes {
			return nil, d.tooLarge("file_too_large", d.maxFileBytes)
		}
		return src.payload, nil
	}
	if src.ref == nil {
		return nil, &inputError{key: "media_missing"}
	}
	data, err := d.chat.FetchMedia(ctx, src.ref.MediaID)
	if err != nil {
		return nil, &inputError{key: "media_missing", err: err}
	}
	if len(data) == 0 {
		return nil, &inputError{key: "media_missing"}
	}
	if int64(len(data)) > d.maxFileBytes {
		return nil, d.tooLarge("file_too_large", d.maxFileBytes)
	}
	_, mime := transform.Classify(data, src.ref.MimeType, src.ref.Filename)
	filename := src.ref.Filename
	if filename == "" {
		filename = "file" + transform.OutputExtension(mime)
	}
	return &session.Payload{Data: data, Filename: filename, MimeType: mime}, nil
}

// stash fetches a file that must be kept for a later turn. On failure the
// sender has been answered and ok is false.
func (d *Dispatcher) stash(ctx context.Context, s *session.Session, feature intent.Intent, ref session.FileRef) (*session.Payload, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, d.pipelineTimeout)
	defer cancel()
	payload, err := d.load(fetchCtx, source{ref: &ref})
	if err != nil {
		var ie *inputError
		if !errors.As(err, &ie) {
			ie = &inputError{key: "processing_failed", err: err}
		}
		d.rejectInput(ctx, s, feature, nil, ie)
		return nil, false
	}
	return payload, true
}

func (d *Dispatcher) tooLarge(key string, limit int64) *inputError {
	return &inputError{key: key, args: []any{formatSize(limit)}, err: fmt.Errorf("over %d bytes", limit)}
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10:
		return fmt.Sprintf("%d KB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}

func acceptsPDF(p *session.Payload) bool {
	switch transform.ClassifyDeclared(p.MimeType, p.Filename) {
	case transform.KindPDF, transform.KindOffice:
		return true
	}
	return false
}
