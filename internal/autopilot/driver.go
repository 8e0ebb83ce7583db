package autopilot

import "time"

// Point is a coordinate relative to a window's top-left corner.
type Point struct {
	X int32 `mapstructure:"x" json:"x"`
	Y int32 `mapstructure:"y" json:"y"`
}

// ScriptLayout pins the interaction script to one window layout: the bot
// window is forced to WindowWidth x WindowHeight at the screen origin and all
// points below are offsets into that layout (popup points are offsets into
// the detected popup window). The delays are empirically tuned for the bot's
// UI animations; treat them as configuration, not as facts.
type ScriptLayout struct {
	// WindowTitle is the substring that identifies the bot's main window.
	WindowTitle  string `mapstructure:"window_title"`
	WindowWidth  int32  `mapstructure:"window_width"`
	WindowHeight int32  `mapstructure:"window_height"`

	SearchField     Point `mapstructure:"search_field"`     // account search input
	SearchButton    Point `mapstructure:"search_button"`    // runs the search
	ResultRow       Point `mapstructure:"result_row"`       // first result; double-clicked
	FunctionsButton Point `mapstructure:"functions_button"` // opens the Functions popup
	ReloadSettings  Point `mapstructure:"reload_settings"`  // popup-relative
	PopupClose      Point `mapstructure:"popup_close"`      // popup-relative
	RecordClose     Point `mapstructure:"record_close"`     // closes the account record

	ClickDelay   time.Duration `mapstructure:"click_delay"`   // settle after a click
	PasteDelay   time.Duration `mapstructure:"paste_delay"`   // settle after clipboard paste
	StepDelay    time.Duration `mapstructure:"step_delay"`    // between major script steps
	PopupTimeout time.Duration `mapstructure:"popup_timeout"` // bound on popup detection
	PopupPoll    time.Duration `mapstructure:"popup_poll"`
}

// DefaultScriptLayout matches the bot's stock window at 1024x768.
func DefaultScriptLayout() ScriptLayout {
	return ScriptLayout{
		WindowTitle:     "GameBot",
		WindowWidth:     1024,
		WindowHeight:    768,
		SearchField:     Point{X: 212, Y: 92},
		SearchButton:    Point{X: 355, Y: 92},
		ResultRow:       Point{X: 212, Y: 152},
		FunctionsButton: Point{X: 905, Y: 330},
		ReloadSettings:  Point{X: 120, Y: 210},
		PopupClose:      Point{X: 340, Y: 14},
		RecordClose:     Point{X: 998, Y: 14},
		ClickDelay:      150 * time.Millisecond,
		PasteDelay:      400 * time.Millisecond,
		StepDelay:       900 * time.Millisecond,
		PopupTimeout:    10 * time.Second,
		PopupPoll:       250 * time.Millisecond,
	}
}

func (l ScriptLayout) withDefaults() ScriptLayout {
	d := DefaultScriptLayout()
	if l.WindowTitle == "" {
		l.WindowTitle = d.WindowTitle
	}
	if l.WindowWidth <= 0 {
		l.WindowWidth = d.WindowWidth
	}
	if l.WindowHeight <= 0 {
		l.WindowHeight = d.WindowHeight
	}
	if l.ClickDelay <= 0 {
		l.ClickDelay = d.ClickDelay
	}
	if l.PasteDelay <= 0 {
		l.PasteDelay = d.PasteDelay
	}
	if l.StepDelay <= 0 {
		l.StepDelay = d.StepDelay
	}
	if l.PopupTimeout <= 0 {
		l.PopupTimeout = d.PopupTimeout
	}
	if l.PopupPoll <= 0 {
		l.PopupPoll = d.PopupPoll
	}
	return l
}

// NewWindowDriver builds the platform driver for the layout. On platforms
// without desktop automation support the returned driver fails every run
// with a descriptive error; the panel itself still serves.
func NewWindowDriver(layout ScriptLayout) WindowAutomationDriver {
	return newWindowDriver(layout.withDefaults())
}
