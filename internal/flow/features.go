package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/docbot/internal/intent"
	"github.com/ent0n29/docbot/internal/session"
	"github.com/ent0n29/docbot/internal/transform"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeText = "text/plain"
)

var extensions = map[string]string{
	mimePDF:  ".pdf",
	mimeDOCX: ".docx",
	mimePPTX: ".pptx",
	mimeXLSX: ".xlsx",
	mimeText: ".txt",
}

// result is one file to hand back to the sender.
type result struct {
	data    []byte
	mime    string
	prefix  string
	caption string
	asImage bool
}

// runImmediate is the single-shot shape: one file in, one result out.
func (d *Dispatcher) runImmediate(ctx context.Context, s *session.Session, feature intent.Intent, src source) {
	params := s.Params
	d.runPipeline(ctx, s.SenderID, feature, func(ctx context.Context, a *attempt) error {
		payload, err := d.load(ctx, src)
		if err != nil {
			return err
		}
		a.observeInput(payload)
		return d.apply(ctx, s.SenderID, feature, payload, params, a)
	})
}

// runTwoTurn completes a deferred feature with the text the sender just
// typed. The text is passed on exactly as received.
func (d *Dispatcher) runTwoTurn(ctx context.Context, s *session.Session, text string) {
	if strings.TrimSpace(text) == "" {
		d.promptForParam(ctx, s)
		return
	}
	payload := s.Pending
	if payload == nil {
		d.sessions.Clear(s.SenderID)
		d.say(ctx, s.SenderID, "send_pdf_first")
		return
	}

	params := s.Params
	switch s.Intent {
	case intent.Split, intent.Reorder:
		params.PageSpec = text
	case intent.Lock, intent.Unlock:
		params.Password = text
	case intent.Watermark:
		params.WatermarkText = text
	}
	d.sessions.Update(s.SenderID, session.Patch{Params: session.ParamsPtr(params)})

	feature := s.Intent
	d.runPipeline(ctx, s.SenderID, feature, func(ctx context.Context, a *attempt) error {
		a.observeInput(payload)
		return d.apply(ctx, s.SenderID, feature, payload, params, a)
	})
}

// runTwoFile signs the stored base document with the signature image in ref.
func (d *Dispatcher) runTwoFile(ctx context.Context, s *session.Session, ref session.FileRef) {
	base := s.Pending
	d.runPipeline(ctx, s.SenderID, intent.Sign, func(ctx context.Context, a *attempt) error {
		a.observeInput(base)
		sig, err := d.load(ctx, source{ref: &ref})
		if err != nil {
			return err
		}
		a.observeInput(sig)
		if kindOf(sig) != transform.KindImage {
			return needImage()
		}
		pdf, err := d.asPDF(ctx, base)
		if err != nil {
			return err
		}
		out, err := d.engine.Sign(ctx, pdf, inputOf(sig))
		if err != nil {
			return err
		}
		return d.deliver(ctx, s.SenderID, a, result{data: out, mime: mimePDF, prefix: "signed", caption: d.text.Text("caption_sign")})
	})
}

// runAccumulate merges every buffered file, in the order received.
func (d *Dispatcher) runAccumulate(ctx context.Context, s *session.Session) {
	files := append([]session.FileRef(nil), s.Files...)
	d.say(ctx, s.SenderID, "merging", len(files))
	d.runPipeline(ctx, s.SenderID, intent.Merge, func(ctx context.Context, a *attempt) error {
		inputs := make([]transform.Input, len(files))
		var total atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		for i, f := range files {
			g.Go(func() error {
				data, err := d.chat.FetchMedia(gctx, f.MediaID)
				if err != nil {
					return &inputError{key: "media_missing", err: err}
				}
				if total.Add(int64(len(data))) > d.maxMergeBytes {
					return d.tooLarge("merge_too_large", d.maxMergeBytes)
				}
				_, mime := transform.Classify(data, f.MimeType, f.Filename)
				inputs[i] = transform.Input{Data: data, MimeType: mime, Filename: f.Filename}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		a.inputBytes = total.Load()
		a.inputType = "mixed"

		out, err := d.engine.Merge(ctx, inputs)
		if err != nil {
			return err
		}
		return d.deliver(ctx, s.SenderID, a, result{
			data:    out,
			mime:    mimePDF,
			prefix:  "merged",
			caption: d.text.Text("caption_merge", len(inputs)),
		})
	})
}

// apply runs the transform for feature on payload and delivers the result.
func (d *Dispatcher) apply(ctx context.Context, to string, feature intent.Intent, payload *session.Payload, params session.Params, a *attempt) error {
	kind := kindOf(payload)
	pdfResult := func(prefix, caption string) func([]byte, error) error {
		return func(out []byte, err error) error {
			if err != nil {
				return err
			}
			return d.deliver(ctx, to, a, result{data: out, mime: mimePDF, prefix: prefix, caption: caption})
		}
	}

	switch feature {
	case intent.Convert:
		switch kind {
		case transform.KindImage:
			return pdfResult("converted", d.text.Text("caption_convert"))(d.engine.ImageToPDF(ctx, inputOf(payload), ""))
		case transform.KindOffice:
			return pdfResult("converted", d.text.Text("caption_office"))(d.engine.OfficeToPDF(ctx, inputOf(payload)))
		}
		return needImage()

	case intent.Compress:
		quality := params.Quality
		if quality == "" {
			quality = defaultQuality
		}
		if kind == transform.KindImage {
			return pdfResult("compressed", d.text.Text("caption_compress"))(d.engine.ImageToPDF(ctx, inputOf(payload), quality))
		}
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			return pdfResult("compressed", d.text.Text("caption_compress"))(d.engine.CompressPDF(ctx, pdf, quality))
		})

	case intent.Rotate:
		angle := params.RotationAngle
		if angle == 0 {
			angle = defaultRotation
		}
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			return pdfResult("rotated", d.text.Text("caption_rotate", angle))(d.engine.Rotate(ctx, pdf, angle))
		})

	case intent.PageNumber:
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			return pdfResult("numbered", d.text.Text("caption_page_numbers"))(d.engine.AddPageNumbers(ctx, pdf))
		})

	case intent.Archive:
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			return pdfResult("archived", d.text.Text("caption_archive"))(d.engine.Archive(ctx, pdf))
		})

	case intent.Split:
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			return pdfResult("split", d.text.Text("caption_split", params.PageSpec))(d.engine.Split(ctx, pdf, params.PageSpec))
		})

	case intent.Reorder:
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			return pdfResult("reordered", d.text.Text("caption_reorder", params.PageSpec))(d.engine.Reorder(ctx, pdf, params.PageSpec))
		})

	case intent.Lock:
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			return pdfResult("locked", d.text.Text("caption_lock"))(d.engine.Lock(ctx, pdf, params.Password))
		})

	case intent.Unlock:
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			return pdfResult("unlocked", d.text.Text("caption_unlock"))(d.engine.Unlock(ctx, pdf, params.Password))
		})

	case intent.Watermark:
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			return pdfResult("watermarked", d.text.Text("caption_watermark"))(d.engine.Watermark(ctx, pdf, params.WatermarkText))
		})

	case intent.OCR:
		return d.ocr(ctx, to, payload, a)

	case intent.Enhance, intent.RemoveBG:
		if kind != transform.KindImage {
			return needImage()
		}
		var out []byte
		var err error
		prefix, caption := "enhanced", d.text.Text("caption_enhance")
		if feature == intent.Enhance {
			out, err = d.engine.Enhance(ctx, inputOf(payload))
		} else {
			prefix, caption = "no_background", d.text.Text("caption_remove_bg")
			out, err = d.engine.RemoveBackground(ctx, inputOf(payload))
		}
		if err != nil {
			return err
		}
		_, mime := transform.Classify(out, "", "")
		return d.deliver(ctx, to, a, result{data: out, mime: mime, prefix: prefix, caption: caption, asImage: true})

	case intent.PDFToWord, intent.PDFToPPT, intent.PDFToExcel:
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			var out []byte
			var err error
			var res result
			switch feature {
			case intent.PDFToWord:
				out, err = d.engine.PDFToWord(ctx, pdf)
				res = result{mime: mimeDOCX, prefix: "document", caption: d.text.Text("caption_pdf_to_word")}
			case intent.PDFToPPT:
				out, err = d.engine.PDFToPPT(ctx, pdf)
				res = result{mime: mimePPTX, prefix: "slides", caption: d.text.Text("caption_pdf_to_ppt")}
			default:
				out, err = d.engine.PDFToExcel(ctx, pdf)
				res = result{mime: mimeXLSX, prefix: "tables", caption: d.text.Text("caption_pdf_to_excel")}
			}
			if err != nil {
				return err
			}
			res.data = out
			return d.deliver(ctx, to, a, res)
		})

	case intent.PDFToImage:
		return d.onPDF(ctx, payload, func(pdf []byte) error {
			pages, err := d.engine.PDFToImages(ctx, pdf)
			if err != nil {
				return err
			}
			if len(pages) == 0 {
				return errors.New("transform returned no pages")
			}
			results := make([]result, 0, len(pages))
			for i, page := range pages {
				_, mime := transform.Classify(page, "", "")
				results = append(results, result{
					data:    page,
					mime:    mime,
					prefix:  fmt.Sprintf("page_%d", i+1),
					caption: d.text.Text("caption_pdf_to_image", i+1, len(pages)),
					asImage: true,
				})
			}
			return d.deliver(ctx, to, a, results...)
		})

	case intent.WordToPDF, intent.ExcelToPDF, intent.PPTToPDF:
		if kind != transform.KindOffice {
			return &inputError{key: "unsupported_format", args: []any{"Word, Excel or PowerPoint document"}}
		}
		return pdfResult("converted", d.text.Text("caption_office"))(d.engine.OfficeToPDF(ctx, inputOf(payload)))
	}
	return fmt.Errorf("no pipeline for feature %q", feature)
}

func (d *Dispatcher) ocr(ctx context.Context, to string, payload *session.Payload, a *attempt) error {
	in := inputOf(payload)
	switch kindOf(payload) {
	case transform.KindImage, transform.KindPDF:
	case transform.KindOffice:
		pdf, err := d.engine.OfficeToPDF(ctx, in)
		if err != nil {
			return err
		}
		in = transform.Input{Data: pdf, MimeType: mimePDF, Filename: "document.pdf"}
	default:
		return unsupported()
	}
	text, err := d.engine.OCR(ctx, in)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return transform.Invalid("no_text_found", d.text.Text("no_text_found"))
	}
	if len(text) <= maxInlineText {
		if err := d.chat.SendText(ctx, to, d.text.Text("ocr_result", text)); err != nil {
			return &deliveryError{op: "send_text", err: err}
		}
		a.outputType = mimeText
		a.outputBytes = int64(len(text))
		return nil
	}
	return d.deliver(ctx, to, a, result{data: []byte(text), mime: mimeText, prefix: "extracted_text"})
}

// onPDF hands fn the payload as PDF bytes, converting office documents first.
func (d *Dispatcher) onPDF(ctx context.Context, payload *session.Payload, fn func([]byte) error) error {
	pdf, err := d.asPDF(ctx, payload)
	if err != nil {
		return err
	}
	return fn(pdf)
}

func (d *Dispatcher) asPDF(ctx context.Context, payload *session.Payload) ([]byte, error) {
	switch kindOf(payload) {
	case transform.KindPDF:
		return payload.Data, nil
	case transform.KindOffice:
		return d.engine.OfficeToPDF(ctx, inputOf(payload))
	}
	return nil, needPDF()
}

// deliver uploads each result and sends it, in order. Any failure here comes
// after a successful transform and is reported as a delivery failure.
func (d *Dispatcher) deliver(ctx context.Context, to string, a *attempt, results ...result) error {
	stamp := d.now().Format("20060102_150405")
	for _, r := range results {
		filename := r.prefix + "_" + stamp + extensionFor(r.mime)
		mediaID, err := d.chat.UploadMedia(ctx, r.data, r.mime, filename)
		if err != nil {
			return &deliveryError{op: "upload_media", err: err}
		}
		if r.asImage {
			err = d.chat.SendImage(ctx, to, mediaID, r.caption)
		} else {
			err = d.chat.SendDocument(ctx, to, mediaID, filename, r.caption)
		}
		if err != nil {
			return &deliveryError{op: "send_result", err: err}
		}
		a.outputBytes += int64(len(r.data))
		a.outputType = r.mime
	}
	return nil
}

func extensionFor(mime string) string {
	if ext, ok := extensions[mime]; ok {
		return ext
	}
	return transform.OutputExtension(mime)
}

func kindOf(p *session.Payload) transform.FileKind {
	return transform.ClassifyDeclared(p.MimeType, p.Filename)
}

func inputOf(p *session.Payload) transform.Input {
	return transform.Input{Data: p.Data, MimeType: p.MimeType, Filename: p.Filename}
}
