package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/docbot/internal/reliability"
)

const maxResultBytes = 200 << 20

// HTTPEngine forwards each transformation to a worker service. Every
// operation is a multipart POST to {baseURL}/v1/transform/{op}; binary results
// come back as the response body, structured ones as JSON. A 422 response
// carries {"code": "...", "error": "..."} and becomes a *ValidationError.
type HTTPEngine struct {
	baseURL   string
	client    *http.Client
	maxResult int64
}

func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPEngine{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:    &http.Client{Timeout: timeout},
		maxResult: maxResultBytes,
	}
}

type part struct {
	field string
	in    Input
}

func pdfPart(pdf []byte) part {
	return part{field: "file", in: Input{Data: pdf, MimeType: "application/pdf", Filename: "input.pdf"}}
}

func (e *HTTPEngine) ImageToPDF(ctx context.Context, img Input, quality string) ([]byte, error) {
	fields := map[string]string{"compress": strconv.FormatBool(quality != "")}
	if quality != "" {
		fields["quality"] = quality
	}
	return e.postBytes(ctx, "image_to_pdf", fields, part{"file", img})
}

func (e *HTTPEngine) CompressPDF(ctx context.Context, pdf []byte, quality string) ([]byte, error) {
	return e.postBytes(ctx, "compress", map[string]string{"quality": quality}, pdfPart(pdf))
}

func (e *HTTPEngine) Merge(ctx context.Context, items []Input) ([]byte, error) {
	parts := make([]part, 0, len(items))
	for _, in := range items {
		parts = append(parts, part{"files", in})
	}
	return e.postBytes(ctx, "merge", nil, parts...)
}

func (e *HTTPEngine) Split(ctx context.Context, pdf []byte, pages string) ([]byte, error) {
	return e.postBytes(ctx, "split", map[string]string{"pages": pages}, pdfPart(pdf))
}

func (e *HTTPEngine) Rotate(ctx context.Context, pdf []byte, angle int) ([]byte, error) {
	return e.postBytes(ctx, "rotate", map[string]string{"angle": strconv.Itoa(angle)}, pdfPart(pdf))
}

func (e *HTTPEngine) Reorder(ctx context.Context, pdf []byte, order string) ([]byte, error) {
	return e.postBytes(ctx, "reorder", map[string]string{"order": order}, pdfPart(pdf))
}

func (e *HTTPEngine) Lock(ctx context.Context, pdf []byte, password string) ([]byte, error) {
	return e.postBytes(ctx, "lock", map[string]string{"password": password}, pdfPart(pdf))
}

func (e *HTTPEngine) Unlock(ctx context.Context, pdf []byte, password string) ([]byte, error) {
	return e.postBytes(ctx, "unlock", map[string]string{"password": password}, pdfPart(pdf))
}

func (e *HTTPEngine) AddPageNumbers(ctx context.Context, pdf []byte) ([]byte, error) {
	return e.postBytes(ctx, "page_numbers", nil, pdfPart(pdf))
}

func (e *HTTPEngine) Watermark(ctx context.Context, pdf []byte, text string) ([]byte, error) {
	return e.postBytes(ctx, "watermark", map[string]string{"text": text}, pdfPart(pdf))
}

func (e *HTTPEngine) Sign(ctx context.Context, pdf []byte, signature Input) ([]byte, error) {
	return e.postBytes(ctx, "sign", nil, pdfPart(pdf), part{"signature", signature})
}

func (e *HTTPEngine) Archive(ctx context.Context, pdf []byte) ([]byte, error) {
	return e.postBytes(ctx, "archive", nil, pdfPart(pdf))
}

func (e *HTTPEngine) OCR(ctx context.Context, doc Input) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := e.postJSON(ctx, "ocr", nil, &out, part{"file", doc}); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (e *HTTPEngine) Enhance(ctx context.Context, img Input) ([]byte, error) {
	return e.postBytes(ctx, "enhance", nil, part{"file", img})
}

func (e *HTTPEngine) RemoveBackground(ctx context.Context, img Input) ([]byte, error) {
	return e.postBytes(ctx, "remove_bg", nil, part{"file", img})
}

func (e *HTTPEngine) PDFToWord(ctx context.Context, pdf []byte) ([]byte, error) {
	return e.postBytes(ctx, "pdf_to_word", nil, pdfPart(pdf))
}

func (e *HTTPEngine) PDFToImages(ctx context.Context, pdf []byte) ([][]byte, error) {
	var out struct {
		Pages [][]byte `json:"pages"`
	}
	if err := e.postJSON(ctx, "pdf_to_image", nil, &out, pdfPart(pdf)); err != nil {
		return nil, err
	}
	return out.Pages, nil
}

func (e *HTTPEngine) PDFToPPT(ctx context.Context, pdf []byte) ([]byte, error) {
	return e.postBytes(ctx, "pdf_to_ppt", nil, pdfPart(pdf))
}

func (e *HTTPEngine) PDFToExcel(ctx context.Context, pdf []byte) ([]byte, error) {
	return e.postBytes(ctx, "pdf_to_excel", nil, pdfPart(pdf))
}

func (e *HTTPEngine) OfficeToPDF(ctx context.Context, doc Input) ([]byte, error) {
	return e.postBytes(ctx, "office_to_pdf", nil, part{"file", doc})
}

func (e *HTTPEngine) postBytes(ctx context.Context, op string, fields map[string]string, parts ...part) ([]byte, error) {
	res, err := e.do(ctx, op, fields, parts)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, e.maxResult+1))
	if err != nil {
		return nil, fmt.Errorf("read %s result: %w", op, err)
	}
	if int64(len(body)) > e.maxResult {
		return nil, fmt.Errorf("%s result exceeds %d bytes", op, e.maxResult)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%s returned an empty result", op)
	}
	return body, nil
}

func (e *HTTPEngine) postJSON(ctx context.Context, op string, fields map[string]string, out any, parts ...part) error {
	res, err := e.do(ctx, op, fields, parts)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(io.LimitReader(res.Body, e.maxResult)).Decode(out); err != nil {
		return fmt.Errorf("decode %s result: %w", op, err)
	}
	return nil
}

func (e *HTTPEngine) do(ctx context.Context, op string, fields map[string]string, parts []part) (*http.Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	for _, p := range parts {
		name := p.in.Filename
		if name == "" {
			name = "upload"
		}
		fw, err := w.CreateFormFile(p.field, name)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := fw.Write(p.in.Data); err != nil {
			return nil, fmt.Errorf("write form file: %w", err)
		}
		if p.in.MimeType != "" {
			if err := w.WriteField(p.field+"_mime_type", p.in.MimeType); err != nil {
				return nil, fmt.Errorf("write mime field: %w", err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/transform/"+op, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	res, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s request: %w", op, err)
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return res, nil
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	if res.StatusCode == http.StatusUnprocessableEntity {
		var v struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &v); err == nil && v.Error != "" {
			return nil, &ValidationError{Code: v.Code, Message: v.Error}
		}
	}
	return nil, &reliability.StatusError{Op: "transform " + op, Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
}
