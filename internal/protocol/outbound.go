package protocol

// MaxButtons is the platform limit for quick-reply buttons on one message.
const MaxButtons = 3

type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type MenuRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type MenuSection struct {
	Title string    `json:"title"`
	Rows  []MenuRow `json:"rows"`
}

// Menu is an interactive list message. Header and Footer are optional.
type Menu struct {
	Body        string
	ButtonLabel string
	Header      string
	Footer      string
	Sections    []MenuSection
}
