package flow

import (
	"context"

	"github.com/ent0n29/docbot/internal/conversions"
	"github.com/ent0n29/docbot/internal/protocol"
)

// ChatClient is the outbound side of the messaging platform. Implementations
// own any retry policy; the dispatcher calls each method once.
type ChatClient interface {
	FetchMedia(ctx context.Context, mediaID string) ([]byte, error)
	UploadMedia(ctx context.Context, data []byte, mime, filename string) (string, error)
	SendText(ctx context.Context, to, text string) error
	SendButtons(ctx context.Context, to, text string, buttons []protocol.Button) error
	SendMenu(ctx context.Context, to string, menu protocol.Menu) error
	SendDocument(ctx context.Context, to, mediaID, filename, caption string) error
	SendImage(ctx context.Context, to, mediaID, caption string) error
	MarkSeenAndTyping(ctx context.Context, to, messageID string) error
}

// ConversionLog receives one record per pipeline state change. The
// dispatcher never reads it back.
type ConversionLog interface {
	Record(ctx context.Context, rec conversions.Record) error
}

// Handler processes one inbound message to completion.
type Handler interface {
	Handle(ctx context.Context, in protocol.Inbound)
}
