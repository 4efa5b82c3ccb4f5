// Package transform is the boundary to the document and image processing
// routines. The assistant never manipulates file contents itself.
package transform

import (
	"context"
	"errors"
	"fmt"
)

// Input is a fetched file together with what the sender told us about it.
type Input struct {
	Data     []byte
	MimeType string
	Filename string
}

// Engine runs one transformation per feature. Errors of type
// *ValidationError describe bad user input and are safe to show verbatim;
// anything else is an internal failure.
type Engine interface {
	// ImageToPDF compresses at quality; an empty quality converts losslessly.
	ImageToPDF(ctx context.Context, img Input, quality string) ([]byte, error)
	CompressPDF(ctx context.Context, pdf []byte, quality string) ([]byte, error)
	Merge(ctx context.Context, items []Input) ([]byte, error)
	Split(ctx context.Context, pdf []byte, pages string) ([]byte, error)
	Rotate(ctx context.Context, pdf []byte, angle int) ([]byte, error)
	Reorder(ctx context.Context, pdf []byte, order string) ([]byte, error)
	Lock(ctx context.Context, pdf []byte, password string) ([]byte, error)
	Unlock(ctx context.Context, pdf []byte, password string) ([]byte, error)
	AddPageNumbers(ctx context.Context, pdf []byte) ([]byte, error)
	Watermark(ctx context.Context, pdf []byte, text string) ([]byte, error)
	Sign(ctx context.Context, pdf []byte, signature Input) ([]byte, error)
	Archive(ctx context.Context, pdf []byte) ([]byte, error)
	OCR(ctx context.Context, doc Input) (string, error)
	Enhance(ctx context.Context, img Input) ([]byte, error)
	RemoveBackground(ctx context.Context, img Input) ([]byte, error)
	PDFToWord(ctx context.Context, pdf []byte) ([]byte, error)
	PDFToImages(ctx context.Context, pdf []byte) ([][]byte, error)
	PDFToPPT(ctx context.Context, pdf []byte) ([]byte, error)
	PDFToExcel(ctx context.Context, pdf []byte) ([]byte, error)
	OfficeToPDF(ctx context.Context, doc Input) ([]byte, error)
}

// ValidationError reports input the transform rejected, such as an empty
// page selection or a wrong password.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Invalid(code, message string) error {
	return &ValidationError{Code: code, Message: message}
}

// AsValidation unwraps err into a *ValidationError when it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
