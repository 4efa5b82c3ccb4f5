package protocol

import (
	"errors"
	"testing"
)

func TestParseWebhookText(t *testing.T) {
	raw := []byte(`{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{"messages":[{"id":"wamid.1","from":"919999999999","type":"text","text":{"body":"merge"}}]}}]}]}`)
	msgs, err := ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	got := msgs[0]
	if got.Kind != KindText || got.Text != "merge" || got.From != "919999999999" || got.ID != "wamid.1" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestParseWebhookImageDefaultsMime(t *testing.T) {
	raw := []byte(`{"entry":[{"changes":[{"value":{"messages":[{"id":"m2","from":"1","type":"image","image":{"id":"img_1","caption":"compress"}}]}}]}]}`)
	msgs, err := ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	media := msgs[0].Media
	if msgs[0].Kind != KindImage || media == nil {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}
	if media.MimeType != "image/jpeg" || media.ID != "img_1" || media.Caption != "compress" {
		t.Fatalf("unexpected media: %+v", media)
	}
}

func TestParseWebhookDocument(t *testing.T) {
	raw := []byte(`{"entry":[{"changes":[{"value":{"messages":[{"id":"m3","from":"1","type":"document","document":{"id":"doc_1","mime_type":"application/pdf","filename":"a.pdf"}}]}}]}]}`)
	msgs, err := ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if msgs[0].Kind != KindFile || msgs[0].Media.Filename != "a.pdf" {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}
}

func TestParseWebhookInteractive(t *testing.T) {
	raw := []byte(`{"entry":[{"changes":[{"value":{"messages":[
		{"id":"m4","from":"1","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"btn_rotate_270","title":"270"}}},
		{"id":"m5","from":"1","type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"list_rotate","title":"Rotate"}}}
	]}}]}]}`)
	msgs, err := ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Kind != KindReply || msgs[0].Reply.ButtonID != "btn_rotate_270" {
		t.Fatalf("unexpected button reply: %+v", msgs[0])
	}
	if msgs[1].Reply.MenuID != "list_rotate" || msgs[1].Reply.ButtonID != "" {
		t.Fatalf("unexpected list reply: %+v", msgs[1].Reply)
	}
}

func TestParseWebhookUnsupportedAndStatus(t *testing.T) {
	raw := []byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"x","status":"read"}],"messages":[{"id":"m6","from":"1","type":"sticker"}]}}]}]}`)
	msgs, err := ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Kind != KindUnsupported || msgs[0].RawType != "sticker" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	none, err := ParseWebhook([]byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("len(none) = %d, want 0", len(none))
	}
}

func TestParseWebhookRejectsGarbage(t *testing.T) {
	_, err := ParseWebhook([]byte(`{not json`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("error = %v, want ErrInvalidPayload", err)
	}
}

func TestParseWebhookSkipsMessagesWithoutSender(t *testing.T) {
	msgs, err := ParseWebhook([]byte(`{"entry":[{"changes":[{"value":{"messages":[{"id":"m7","type":"text","text":{"body":"hi"}}]}}]}]}`))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("len(msgs) = %d, want 0", len(msgs))
	}
}
