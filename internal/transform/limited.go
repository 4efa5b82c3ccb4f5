package transform

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Limited caps how many transformations run at once across all senders.
type Limited struct {
	next Engine
	sem  *semaphore.Weighted
}

func NewLimited(next Engine, concurrency int) *Limited {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Limited{next: next, sem: semaphore.NewWeighted(int64(concurrency))}
}

func (l *Limited) acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for transform slot: %w", err)
	}
	return func() { l.sem.Release(1) }, nil
}

func run[T any](ctx context.Context, l *Limited, fn func() (T, error)) (T, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn()
}

func (l *Limited) ImageToPDF(ctx context.Context, img Input, quality string) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.ImageToPDF(ctx, img, quality) })
}

func (l *Limited) CompressPDF(ctx context.Context, pdf []byte, quality string) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.CompressPDF(ctx, pdf, quality) })
}

func (l *Limited) Merge(ctx context.Context, items []Input) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.Merge(ctx, items) })
}

func (l *Limited) Split(ctx context.Context, pdf []byte, pages string) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.Split(ctx, pdf, pages) })
}

func (l *Limited) Rotate(ctx context.Context, pdf []byte, angle int) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.Rotate(ctx, pdf, angle) })
}

func (l *Limited) Reorder(ctx context.Context, pdf []byte, order string) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.Reorder(ctx, pdf, order) })
}

func (l *Limited) Lock(ctx context.Context, pdf []byte, password string) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.Lock(ctx, pdf, password) })
}

func (l *Limited) Unlock(ctx context.Context, pdf []byte, password string) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.Unlock(ctx, pdf, password) })
}

func (l *Limited) AddPageNumbers(ctx context.Context, pdf []byte) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.AddPageNumbers(ctx, pdf) })
}

func (l *Limited) Watermark(ctx context.Context, pdf []byte, text string) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.Watermark(ctx, pdf, text) })
}

func (l *Limited) Sign(ctx context.Context, pdf []byte, signature Input) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.Sign(ctx, pdf, signature) })
}

func (l *Limited) Archive(ctx context.Context, pdf []byte) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.Archive(ctx, pdf) })
}

func (l *Limited) OCR(ctx context.Context, doc Input) (string, error) {
	return run(ctx, l, func() (string, error) { return l.next.OCR(ctx, doc) })
}

func (l *Limited) Enhance(ctx context.Context, img Input) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.Enhance(ctx, img) })
}

func (l *Limited) RemoveBackground(ctx context.Context, img Input) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.RemoveBackground(ctx, img) })
}

func (l *Limited) PDFToWord(ctx context.Context, pdf []byte) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.PDFToWord(ctx, pdf) })
}

func (l *Limited) PDFToImages(ctx context.Context, pdf []byte) ([][]byte, error) {
	return run(ctx, l, func() ([][]byte, error) { return l.next.PDFToImages(ctx, pdf) })
}

func (l *Limited) PDFToPPT(ctx context.Context, pdf []byte) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.PDFToPPT(ctx, pdf) })
}

func (l *Limited) PDFToExcel(ctx context.Context, pdf []byte) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.PDFToExcel(ctx, pdf) })
}

func (l *Limited) OfficeToPDF(ctx context.Context, doc Input) ([]byte, error) {
	return run(ctx, l, func() ([]byte, error) { return l.next.OfficeToPDF(ctx, doc) })
}
