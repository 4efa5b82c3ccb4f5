// Package intent maps free text, captions, button taps and menu picks onto
// the closed set of features the assistant understands.
package intent

import "strings"

type Intent string

// None is the zero value and means "no intent selected".
const (
	None       Intent = ""
	Greeting   Intent = "greeting"
	Help       Intent = "help"
	Cancel     Intent = "cancel"
	Done       Intent = "done"
	Status     Intent = "status"
	Convert    Intent = "convert"
	Compress   Intent = "compress"
	Merge      Intent = "merge"
	Split      Intent = "split"
	Rotate     Intent = "rotate"
	Reorder    Intent = "reorder"
	Lock       Intent = "lock"
	Unlock     Intent = "unlock"
	OCR        Intent = "ocr"
	PageNumber Intent = "page_numbers"
	Watermark  Intent = "watermark"
	Sign       Intent = "sign"
	RemoveBG   Intent = "remove_bg"
	Enhance    Intent = "enhance"
	Archive    Intent = "archive"
	PDFToWord  Intent = "pdf_to_word"
	PDFToImage Intent = "pdf_to_image"
	PDFToPPT   Intent = "pdf_to_ppt"
	PDFToExcel Intent = "pdf_to_excel"
	WordToPDF  Intent = "word_to_pdf"
	ExcelToPDF Intent = "excel_to_pdf"
	PPTToPDF   Intent = "ppt_to_pdf"
	Unknown    Intent = "unknown"
)

type rule struct {
	intent   Intent
	keywords []string
}

// rules is evaluated top to bottom and the first substring hit wins.
// Escape hatches lead, compound conversion phrases precede the single words
// they contain ("unlock" before "lock", "pdf to word" before "pdf"), and the
// short greeting words sit near the end because they occur inside many
// ordinary words.
var rules = []rule{
	{Cancel, []string{"cancel", "reset", "stop", "clear", "start over", "nevermind", "never mind", "abort", "band karo"}},
	{Done, []string{"done", "finish", "that's all", "thats all", "send it", "send them", "go ahead", "ready", "bas", "ho gaya"}},

	{PDFToWord, []string{"pdf to word", "pdf to docx", "pdf to doc"}},
	{PDFToImage, []string{"pdf to image", "pdf to jpg", "pdf to png"}},
	{PDFToPPT, []string{"pdf to ppt", "pdf to powerpoint"}},
	{PDFToExcel, []string{"pdf to excel", "pdf to xlsx"}},
	{WordToPDF, []string{"word to pdf", "doc to pdf", "docx to pdf"}},
	{ExcelToPDF, []string{"excel to pdf", "xlsx to pdf"}},
	{PPTToPDF, []string{"ppt to pdf", "powerpoint to pdf"}},

	{RemoveBG, []string{"remove bg", "remove background", "bg hatao", "background hatao"}},
	{Unlock, []string{"unlock", "remove password", "password hatao"}},
	{Lock, []string{"lock", "password protect", "password lagao"}},
	{PageNumber, []string{"page numbers", "page number", "number pages"}},
	{Watermark, []string{"watermark"}},
	{Sign, []string{"sign", "add signature"}},
	{OCR, []string{"ocr", "extract text", "text nikalo"}},
	{Split, []string{"split", "extract pages"}},
	{Rotate, []string{"rotate", "ghumao"}},
	{Reorder, []string{"reorder", "rearrange"}},
	{Enhance, []string{"enhance", "sharpen"}},
	{Archive, []string{"archive", "pdf/a"}},

	{Compress, []string{"compress", "compressed", "small", "smaller", "reduce", "low quality", "lightweight", "light weight", "compact", "shrink", "tiny", "chhota"}},
	{Merge, []string{"merge", "combine", "join", "multiple", "together", "one pdf", "single pdf", "all in one", "ek pdf"}},
	{Status, []string{"status", "how many", "count", "kitne"}},

	{Help, []string{"help", "menu", "commands", "what can you do", "options", "kya kar sakte"}},
	{Greeting, []string{"hi", "hello", "hey", "hii", "hiii", "namaste", "start", "hola", "sup", "yo"}},
	{Convert, []string{"convert", "make pdf", "image to pdf", "pdf"}},
}

// captionSafe lists the intents a file caption is allowed to select.
var captionSafe = map[Intent]bool{
	Compress: true,
	Merge:    true,
	Enhance:  true,
	OCR:      true,
	RemoveBG: true,
	Sign:     true,
}

// ResolveText classifies a free-text message. Empty or whitespace-only input
// is Unknown.
func ResolveText(body string) Intent {
	text := strings.ToLower(strings.TrimSpace(body))
	if text == "" {
		return Unknown
	}
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.intent
			}
		}
	}
	return Unknown
}

// ResolveCaption returns ok=false when the caption is absent or does not name
// one of the caption-safe intents. Callers must then keep whatever intent the
// session already holds.
func ResolveCaption(caption string) (Intent, bool) {
	if strings.TrimSpace(caption) == "" {
		return None, false
	}
	in := ResolveText(caption)
	if !captionSafe[in] {
		return None, false
	}
	return in, true
}

var buttons = map[string]Intent{
	"btn_convert":        Convert,
	"btn_compress":       Compress,
	"btn_merge":          Merge,
	"btn_help":           Help,
	"btn_menu":           Help,
	"btn_cancel":         Cancel,
	"btn_done":           Done,
	"btn_rotate_90":      Rotate,
	"btn_rotate_180":     Rotate,
	"btn_rotate_270":     Rotate,
	"btn_quality_low":    Compress,
	"btn_quality_medium": Compress,
	"btn_quality_high":   Compress,
}

// ResolveButton maps a button id to its intent. Parametrized buttons map to
// their parent feature only; the value encoded in the id is left to the caller.
func ResolveButton(id string) Intent {
	if in, ok := buttons[id]; ok {
		return in
	}
	return Unknown
}

// ResolveMenu maps a list-menu row id to its intent.
func ResolveMenu(id string) Intent {
	for _, section := range menu {
		for _, row := range section.Rows {
			if row.ID == id {
				return row.Intent
			}
		}
	}
	return Unknown
}

// Valid reports whether i is one of the declared intents.
func (i Intent) Valid() bool {
	switch i {
	case None, Greeting, Help, Cancel, Done, Status, Unknown,
		Convert, Compress, Merge, Split, Rotate, Reorder, Lock, Unlock,
		OCR, PageNumber, Watermark, Sign, RemoveBG, Enhance, Archive,
		PDFToWord, PDFToImage, PDFToPPT, PDFToExcel,
		WordToPDF, ExcelToPDF, PPTToPDF:
		return true
	}
	return false
}

// NeedsFile reports whether the feature operates on an uploaded file.
func (i Intent) NeedsFile() bool {
	switch i {
	case None, Greeting, Help, Cancel, Done, Status, Unknown:
		return false
	}
	return i.Valid()
}

// Deferred reports whether the feature needs a typed parameter after the file.
func (i Intent) Deferred() bool {
	switch i {
	case Split, Reorder, Lock, Unlock, Watermark:
		return true
	}
	return false
}
