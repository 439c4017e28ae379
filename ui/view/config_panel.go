package view

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/soocke/framering-go/config"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// ConfigPanel edits the capture options used by the next recording. It owns
// its widgets and writes back into *config.Config on ApplyChanges.
type ConfigPanel interface {
	Build(startRow int) (endRow int) // constructs widgets starting at startRow, returns next free row
	SetEditable(enabled bool)
	ApplyChanges() // parses widget text into underlying config and persists
}

// optionField binds one text row to a config field.
type optionField struct {
	label string
	get   func(c *config.Config) string
	set   func(c *config.Config, s string) bool
}

func floatField(label string, ptr func(*config.Config) *float64, prec int) optionField {
	return optionField{
		label: label,
		get:   func(c *config.Config) string { return strconv.FormatFloat(*ptr(c), 'f', prec, 64) },
		set: func(c *config.Config, s string) bool {
			f, ok := parseFloatField(s)
			if ok {
				*ptr(c) = f
			}
			return ok
		},
	}
}

func intField(label string, ptr func(*config.Config) *int) optionField {
	return optionField{
		label: label,
		get:   func(c *config.Config) string { return strconv.Itoa(*ptr(c)) },
		set: func(c *config.Config, s string) bool {
			i, ok := parseIntField(s)
			if ok {
				*ptr(c) = i
			}
			return ok
		},
	}
}

func boolField(label string, ptr func(*config.Config) *bool) optionField {
	return optionField{
		label: label + " (true/false)",
		get:   func(c *config.Config) string { return strconv.FormatBool(*ptr(c)) },
		set: func(c *config.Config, s string) bool {
			b, ok := parseBoolLoose(s)
			if ok {
				*ptr(c) = b
			}
			return ok
		},
	}
}

var optionFields = []optionField{
	floatField("Buffer Seconds", func(c *config.Config) *float64 { return &c.BufferSeconds }, 1),
	intField("Memory Budget MB", func(c *config.Config) *int { return &c.MemoryBudgetMB }),
	intField("Target FPS", func(c *config.Config) *int { return &c.TargetFPS }),
	intField("Staging Slots", func(c *config.Config) *int { return &c.StagingSlots }),
	intField("Readback Workers", func(c *config.Config) *int { return &c.ReadbackWorkers }),
	floatField("Hard Ceiling Factor", func(c *config.Config) *float64 { return &c.HardCeilingFactor }, 2),
	boolField("Include Cursor", func(c *config.Config) *bool { return &c.IncludeCursor }),
	boolField("Border Required", func(c *config.Config) *bool { return &c.BorderRequired }),
	boolField("Keep Frames On Resize", func(c *config.Config) *bool { return &c.KeepFramesOnResize }),
}

type configPanel struct {
	cfg      *config.Config
	cfgPath  string
	logger   *slog.Logger
	applyBtn *ButtonWidget
	inputs   []*TextWidget // parallel to optionFields
}

// NewConfigPanel creates the view bound to cfg.
func NewConfigPanel(cfg *config.Config, cfgPath string, logger *slog.Logger) ConfigPanel {
	return &configPanel{cfg: cfg, cfgPath: cfgPath, logger: logger}
}

func (v *configPanel) Build(startRow int) int {
	row := startRow
	v.inputs = make([]*TextWidget, len(optionFields))
	for i, f := range optionFields {
		Grid(Label(Txt(f.label), Anchor("w")), Row(row), Column(0), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
		w := Text(Height(1), Width(16))
		Grid(w, Row(row), Column(1), Sticky("we"), Padx("0.4m"), Pady("0.15m"))
		w.Insert("1.0", f.get(v.cfg))
		v.inputs[i] = w
		row++
	}
	v.applyBtn = Button(Txt("Apply Changes"), Command(v.ApplyChanges))
	Grid(v.applyBtn, Row(row), Column(0), Columnspan(2), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	return row + 1
}

func (v *configPanel) SetEditable(enabled bool) {
	state := "disabled"
	if enabled {
		state = "normal"
	}
	for _, w := range v.inputs {
		w.Configure(State(state))
	}
	if v.applyBtn != nil {
		v.applyBtn.Configure(State(state))
	}
}

// ApplyChanges validates the edited options and saves them. Rows that do not
// parse keep their previous value; an invalid combination is rejected whole.
func (v *configPanel) ApplyChanges() {
	if v.cfg == nil || v.inputs == nil {
		return
	}
	next := *v.cfg
	for i, f := range optionFields {
		text := strings.TrimSpace(strings.Join(v.inputs[i].Get("1.0", END), ""))
		if !f.set(&next, text) && v.logger != nil {
			v.logger.Warn("config field ignored", "field", f.label, "value", text)
		}
	}
	if err := next.Validate(); err != nil {
		if v.logger != nil {
			v.logger.Warn("config rejected", "error", err)
		}
		return
	}
	*v.cfg = next
	if err := v.cfg.Save(v.cfgPath); err != nil {
		if v.logger != nil {
			v.logger.Error("config save failed", "error", err)
		}
		return
	}
	if v.logger != nil {
		v.logger.Info("config saved", "path", v.cfgPath)
	}
}

func parseFloatField(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
func parseIntField(s string) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return i, true
}
func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on", "t":
		return true, true
	case "false", "0", "no", "n", "off", "f":
		return false, true
	default:
		return false, false
	}
}
