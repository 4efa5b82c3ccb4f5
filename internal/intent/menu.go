package intent

// MaxRowsPerMenu is the row limit of a single interactive list message.
const MaxRowsPerMenu = 10

type Row struct {
	ID          string
	Title       string
	Description string
	Intent      Intent
}

type Section struct {
	Title string
	Rows  []Row
}

var menu = []Section{
	{Title: "Image Tools", Rows: []Row{
		{"list_convert", "Image to PDF", "Turn a photo or scan into a PDF", Convert},
		{"list_compress", "Compress", "Make a PDF or image smaller", Compress},
		{"list_merge", "Merge Files", "Combine images and PDFs into one PDF", Merge},
		{"list_enhance", "Enhance Image", "Sharpen and clean up a document photo", Enhance},
		{"list_remove_bg", "Remove Background", "Cut out the background of an image", RemoveBG},
	}},
	{Title: "PDF Tools", Rows: []Row{
		{"list_split", "Split PDF", "Extract selected pages", Split},
		{"list_rotate", "Rotate PDF", "Rotate every page", Rotate},
		{"list_reorder", "Reorder Pages", "Put pages in a new order", Reorder},
		{"list_page_numbers", "Page Numbers", "Number every page", PageNumber},
		{"list_watermark", "Watermark", "Stamp text across each page", Watermark},
	}},
	{Title: "Security", Rows: []Row{
		{"list_lock", "Lock PDF", "Protect a PDF with a password", Lock},
		{"list_unlock", "Unlock PDF", "Remove a known password", Unlock},
		{"list_sign", "Sign PDF", "Place your signature on a PDF", Sign},
		{"list_archive", "PDF/A Archive", "Convert to long-term archive format", Archive},
		{"list_ocr", "Extract Text", "Read text from a scan or PDF", OCR},
	}},
	{Title: "Convert From PDF", Rows: []Row{
		{"list_pdf_to_word", "PDF to Word", "Editable .docx document", PDFToWord},
		{"list_pdf_to_image", "PDF to Images", "One image per page", PDFToImage},
		{"list_pdf_to_ppt", "PDF to PowerPoint", "One slide per page", PDFToPPT},
		{"list_pdf_to_excel", "PDF to Excel", "Tables into a spreadsheet", PDFToExcel},
	}},
	{Title: "Convert To PDF", Rows: []Row{
		{"list_word_to_pdf", "Word to PDF", "Convert .doc or .docx", WordToPDF},
		{"list_excel_to_pdf", "Excel to PDF", "Convert .xls or .xlsx", ExcelToPDF},
		{"list_ppt_to_pdf", "PowerPoint to PDF", "Convert .ppt or .pptx", PPTToPDF},
	}},
}

// Sections returns a copy of the full feature menu.
func Sections() []Section {
	out := make([]Section, len(menu))
	for i, s := range menu {
		out[i] = Section{Title: s.Title, Rows: append([]Row(nil), s.Rows...)}
	}
	return out
}

// MenuPages groups whole sections into pages that each fit one list message.
func MenuPages() [][]Section {
	var pages [][]Section
	var current []Section
	rows := 0
	for _, s := range Sections() {
		if rows+len(s.Rows) > MaxRowsPerMenu && len(current) > 0 {
			pages = append(pages, current)
			current, rows = nil, 0
		}
		current = append(current, s)
		rows += len(s.Rows)
	}
	if len(current) > 0 {
		pages = append(pages, current)
	}
	return pages
}

// Title returns the human label of a feature, or its raw name when the
// feature is not on the menu.
func (i Intent) Title() string {
	for _, s := range menu {
		for _, r := range s.Rows {
			if r.Intent == i {
				return r.Title
			}
		}
	}
	return string(i)
}
