package flamegraph

// Palette identifies a named frame-fill color family, one entry per
// option enumerated in §4.H's configuration table.
type Palette string

const (
	PaletteHot        Palette = "hot"
	PaletteMem        Palette = "mem"
	PaletteIO         Palette = "io"
	PaletteJava       Palette = "java"
	PaletteJS         Palette = "js"
	PalettePerl       Palette = "perl"
	PaletteRed        Palette = "red"
	PaletteGreen      Palette = "green"
	PaletteBlue       Palette = "blue"
	PaletteAqua       Palette = "aqua"
	PaletteYellow     Palette = "yellow"
	PalettePurple     Palette = "purple"
	PaletteOrange     Palette = "orange"
	PaletteKernelUser Palette = "kernel_user"
	PaletteWakeup     Palette = "wakeup"
	PaletteChain      Palette = "chain"
)

// NameType selects the label that prefixes each frame's tooltip.
type NameType string

const (
	NameTypeFunction NameType = "Function:"
	NameTypeSamples  NameType = "Samples:"
)

// Config collects every renderer knob from §4.H's table. Zero value is
// invalid; use DefaultConfig and override fields.
type Config struct {
	Title    string
	Subtitle string

	Colors   Palette
	BGColors string // named gradient endpoint pair, or "#RRGGBB,#RRGGBB"

	Width      int
	HeightStep int // px per frame row, called "height" in §4.H

	FontType string
	FontSize int

	Inverted   bool
	FlameChart bool
	Hash       bool
	Random     bool

	NameType NameType

	// RandomSeed lets tests exercise the --random path deterministically
	// without reaching for math/rand's global source (which Config.Random
	// would otherwise need, and which the spec explicitly carves out as
	// the one intentionally non-deterministic mode).
	RandomSeed int64
}

// DefaultConfig matches the defaults implied by §8 scenario S2 ("SVG
// title defaults to 'Flame Graph'") and the teacher corpus's general
// convention of 1200px-wide, 16px-row flame graphs.
func DefaultConfig() Config {
	return Config{
		Title:      "Flame Graph",
		Colors:     PaletteHot,
		Width:      1200,
		HeightStep: 16,
		FontType:   "Verdana",
		FontSize:   12,
		NameType:   NameTypeFunction,
	}
}
