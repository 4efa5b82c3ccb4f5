package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies inbound message variants after normalization.
type Kind string

const (
	KindText        Kind = "text"
	KindImage       Kind = "image"
	KindFile        Kind = "file"
	KindReply       Kind = "reply"
	KindUnsupported Kind = "unsupported"
)

const defaultImageMime = "image/jpeg"

var ErrInvalidPayload = errors.New("invalid webhook payload")

// Media references a file held by the chat platform.
type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Reply is a structured answer: exactly one of ButtonID or MenuID is set.
type Reply struct {
	ButtonID string `json:"button_id,omitempty"`
	MenuID   string `json:"menu_id,omitempty"`
}

// Inbound is one user message in platform-neutral form.
type Inbound struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Kind    Kind   `json:"kind"`
	Text    string `json:"text,omitempty"`
	Media   *Media `json:"media,omitempty"`
	Reply   *Reply `json:"reply,omitempty"`
	RawType string `json:"raw_type,omitempty"`
}

// WebhookPayload mirrors the subset of the WhatsApp Cloud API webhook body we read.
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []wireMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type wireMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

type wireMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image       *wireMedia `json:"image"`
	Document    *wireMedia `json:"document"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
}

// ParseWebhook extracts every user message from a webhook body. Delivery
// status callbacks carry no messages and yield an empty slice.
func ParseWebhook(raw []byte) ([]Inbound, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var out []Inbound
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				in, ok := normalize(msg)
				if !ok {
					continue
				}
				out = append(out, in)
			}
		}
	}
	return out, nil
}

func normalize(msg wireMessage) (Inbound, bool) {
	if strings.TrimSpace(msg.From) == "" {
		return Inbound{}, false
	}
	in := Inbound{ID: msg.ID, From: msg.From, RawType: msg.Type}

	switch msg.Type {
	case "text":
		in.Kind = KindText
		if msg.Text != nil {
			in.Text = msg.Text.Body
		}
	case "image":
		in.Kind = KindImage
		in.Media = toMedia(msg.Image, defaultImageMime)
	case "document":
		in.Kind = KindFile
		in.Media = toMedia(msg.Document, "application/octet-stream")
	case "interactive":
		in.Kind = KindReply
		in.Reply = &Reply{}
		if it := msg.Interactive; it != nil {
			if it.ButtonReply != nil {
				in.Reply.ButtonID = it.ButtonReply.ID
			}
			if it.ListReply != nil {
				in.Reply.MenuID = it.ListReply.ID
			}
		}
	case "button":
		in.Kind = KindReply
		in.Reply = &Reply{}
		if msg.Button != nil {
			in.Reply.ButtonID = msg.Button.Payload
		}
	default:
		in.Kind = KindUnsupported
	}
	return in, true
}

func toMedia(m *wireMedia, defaultMime string) *Media {
	if m == nil {
		return &Media{MimeType: defaultMime}
	}
	mime := strings.TrimSpace(m.MimeType)
	if mime == "" {
		mime = defaultMime
	}
	return &Media{
		ID:       m.ID,
		MimeType: mime,
		Filename: m.Filename,
		Caption:  m.Caption,
	}
}
