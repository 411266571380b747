package flamegraph

import (
	"hash/fnv"
	"math/rand"
	"strings"
)

const minWidthPx = 0.1 // §4.H's w_min pruning threshold
const padX = 10

// Rect is one laid-out, colored frame ready for SVG emission.
type Rect struct {
	Name       string
	Total      uint64
	Depth      int
	X, Y, W, H float64
	Fill       string
	IsKernel   bool
	IsOffCPU   bool
}

// Layout walks the trie and produces the ordered list of Rects the SVG
// emitter writes one <g> per entry for. Subtrees narrower than
// minWidthPx are pruned from the output (but their counts still
// contributed to their parent's width during Insert, so the parent's
// rectangle is unaffected).
func Layout(trie *Trie, cfg Config, canvasHeight int) []Rect {
	total := trie.Total()
	if total == 0 {
		return nil
	}

	var rects []Rect
	var walk func(f *Frame, depth int, x float64)
	walk = func(f *Frame, depth int, x float64) {
		children := f.SortedChildren()
		if cfg.FlameChart {
			children = f.FirstSeenChildren()
		}

		childX := x
		for _, child := range children {
			w := float64(child.Total) / float64(total) * float64(cfg.Width-2*padX)
			if w >= minWidthPx {
				y := rowY(depth, cfg, canvasHeight)
				rects = append(rects, Rect{
					Name:     child.Name,
					Total:    child.Total,
					Depth:    depth,
					X:        childX,
					Y:        y,
					W:        w,
					H:        float64(cfg.HeightStep),
					IsKernel: strings.HasSuffix(child.Name, "_[k]"),
					IsOffCPU: strings.HasSuffix(child.Name, "_[o]"),
				})
			}
			walk(child, depth+1, childX)
			childX += w
		}
	}
	walk(trie.Root(), 0, float64(padX))

	colorize(rects, cfg)
	return rects
}

// rowY computes a frame's y coordinate; root-at-bottom normally, root-
// at-top when Inverted per §4.H step 3.
func rowY(depth int, cfg Config, canvasHeight int) float64 {
	if cfg.Inverted {
		return float64(depth * cfg.HeightStep)
	}
	return float64(canvasHeight) - float64((depth+1)*cfg.HeightStep)
}

// colorize fills in each Rect's Fill following §4.H step 4's rule
// order: suffix-based palette overrides first, then, when cfg.Random is
// set, a color drawn from a source seeded with cfg.RandomSeed, otherwise
// a hash of the frame name.
func colorize(rects []Rect, cfg Config) {
	rnd := rand.New(rand.NewSource(cfg.RandomSeed))
	for i := range rects {
		switch {
		case rects[i].IsKernel:
			rects[i].Fill = paletteColor(PaletteKernelUser, 0.15)
		case rects[i].IsOffCPU:
			rects[i].Fill = paletteColor(PaletteWakeup, 0.15)
		case cfg.Random:
			rects[i].Fill = randomColor(rnd)
		case cfg.Hash:
			rects[i].Fill = paletteColor(cfg.Colors, hashFraction(rects[i].Name))
		default:
			rects[i].Fill = paletteColor(cfg.Colors, hashFraction(rects[i].Name))
		}
	}
}

// hashFraction maps a frame name to a stable [0,1) fraction via FNV-1a,
// giving the non-random color modes run-to-run stability without
// needing a seed, matching §8 property 5's determinism requirement.
func hashFraction(name string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return float64(h.Sum32()%1000) / 1000.0
}

func randomColor(rnd *rand.Rand) string {
	r := 150 + rnd.Intn(105)
	g := 150 + rnd.Intn(105)
	b := 150 + rnd.Intn(105)
	return rgbHex(r, g, b)
}

// paletteColor picks an RGB within a palette family's hue band,
// modulated by frac in [0,1) so distinct names land on distinct shades.
func paletteColor(p Palette, frac float64) string {
	base := paletteBase(p)
	r := int(float64(base[0]) * (0.6 + 0.4*frac))
	g := int(float64(base[1]) * (0.6 + 0.4*frac))
	b := int(float64(base[2]) * (0.6 + 0.4*frac))
	return rgbHex(clamp255(r), clamp255(g), clamp255(b))
}

func clamp255(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func rgbHex(r, g, b int) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 7)
	buf[0] = '#'
	put := func(off int, v int) {
		buf[off] = hexDigits[(v>>4)&0xf]
		buf[off+1] = hexDigits[v&0xf]
	}
	put(1, r)
	put(3, g)
	put(5, b)
	return string(buf)
}

func paletteBase(p Palette) [3]int {
	switch p {
	case PaletteMem:
		return [3]int{0, 200, 0}
	case PaletteIO:
		return [3]int{120, 180, 255}
	case PaletteJava, PaletteOrange:
		return [3]int{255, 140, 0}
	case PaletteJS, PaletteYellow:
		return [3]int{230, 220, 60}
	case PalettePerl, PalettePurple:
		return [3]int{170, 100, 220}
	case PaletteRed:
		return [3]int{220, 60, 60}
	case PaletteGreen:
		return [3]int{60, 200, 80}
	case PaletteBlue:
		return [3]int{70, 130, 220}
	case PaletteAqua:
		return [3]int{60, 200, 210}
	case PaletteKernelUser:
		return [3]int{225, 100, 100}
	case PaletteWakeup:
		return [3]int{120, 120, 220}
	case PaletteChain:
		return [3]int{200, 170, 120}
	case PaletteHot:
		fallthrough
	default:
		return [3]int{255, 100, 50}
	}
}
