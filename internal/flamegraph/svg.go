package flamegraph

import (
	"fmt"
	"html"
	"io"
	"strings"
	"text/template"
)

// Render parses folded-stack lines, lays out and colors the resulting
// trie, and writes the deterministic SVG document described by §6.3:
// defs, header text, one <g> per frame, a trailing interactive <script>,
// then the closing tag. Given the same lines and cfg (cfg.Random false),
// two calls produce byte-identical output — §8 property 5.
func Render(w io.Writer, lines []string, cfg Config) error {
	trie, err := BuildTrie(lines)
	if err != nil {
		return err
	}

	depth := maxDepth(trie.Root(), 0)
	canvasHeight := (depth+1)*cfg.HeightStep + 2*cfg.FontSize*4

	rects := Layout(trie, cfg, canvasHeight)

	data := svgData{
		Width:     cfg.Width,
		Height:    canvasHeight,
		Title:     cfg.Title,
		Subtitle:  cfg.Subtitle,
		FontType:  cfg.FontType,
		FontSize:  cfg.FontSize,
		NameLabel: string(cfg.NameType),
		Rects:     make([]svgRect, 0, len(rects)),
		BGTop:     "#eeeeee",
		BGBottom:  "#eeeeb0",
	}
	if cfg.BGColors != "" {
		if top, bottom, ok := splitBGColors(cfg.BGColors); ok {
			data.BGTop, data.BGBottom = top, bottom
		}
	}

	for _, r := range rects {
		tooltip := fmt.Sprintf("%s (%d samples)", r.Name, r.Total)
		if cfg.NameType != "" {
			tooltip = fmt.Sprintf("%s %s", cfg.NameType, tooltip)
		}
		data.Rects = append(data.Rects, svgRect{
			X: r.X, Y: r.Y, W: r.W, H: r.H,
			Fill:    r.Fill,
			Label:   html.EscapeString(truncateLabel(r.Name, r.W, cfg.FontSize)),
			Tooltip: html.EscapeString(tooltip),
		})
	}

	return svgTemplate.Execute(w, data)
}

func maxDepth(f *Frame, depth int) int {
	max := depth
	for _, c := range f.Children {
		if d := maxDepth(c, depth+1); d > max {
			max = d
		}
	}
	return max
}

func splitBGColors(spec string) (string, string, bool) {
	parts := strings.SplitN(spec, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// truncateLabel clips text narrower than 3 character-widths per §4.H
// step 5, approximating character width as 0.6 * fontSize (a common
// monospace-adjacent ratio, since the renderer has no real font metrics
// available at generation time).
func truncateLabel(name string, width float64, fontSize int) string {
	charWidth := float64(fontSize) * 0.6
	if width < 3*charWidth {
		return ""
	}
	maxChars := int(width / charWidth)
	if maxChars <= 0 || len(name) <= maxChars {
		return name
	}
	if maxChars <= 2 {
		return name[:maxChars]
	}
	return name[:maxChars-2] + ".."
}

type svgData struct {
	Width, Height   int
	Title, Subtitle string
	FontType        string
	FontSize        int
	NameLabel       string
	BGTop, BGBottom string
	Rects           []svgRect
}

type svgRect struct {
	X, Y, W, H float64
	Fill       string
	Label      string
	Tooltip    string
}

var svgTemplate = template.Must(template.New("flamegraph").Parse(`<?xml version="1.0" standalone="no"?>
<svg version="1.1" width="{{.Width}}" height="{{.Height}}" onload="init(evt)" viewBox="0 0 {{.Width}} {{.Height}}" xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">
<defs>
	<linearGradient id="background" y1="0" y2="1" x1="0" x2="0">
		<stop stop-color="{{.BGTop}}" offset="5%"/>
		<stop stop-color="{{.BGBottom}}" offset="95%"/>
	</linearGradient>
</defs>
<style type="text/css">
	text { font-family: {{.FontType}}; font-size: {{.FontSize}}px; fill: rgb(0,0,0); }
	.func_g:hover { stroke: black; stroke-width: 0.5; cursor: pointer; }
</style>
<rect x="0" y="0" width="{{.Width}}" height="{{.Height}}" fill="url(#background)"/>
<text id="title" x="{{.Width}}" y="24" text-anchor="middle">{{.Title}}</text>
{{if .Subtitle}}<text id="subtitle" x="10" y="24" text-anchor="left">{{.Subtitle}}</text>{{end}}
<text id="details" x="10" y="{{.Height}}" text-anchor="left"> </text>
<text id="matched" x="{{.Width}}" y="{{.Height}}" text-anchor="right"> </text>
{{range .Rects}}<g class="func_g">
<title>{{.Tooltip}}</title>
<rect x="{{.X}}" y="{{.Y}}" width="{{.W}}" height="{{.H}}" fill="{{.Fill}}" rx="2" ry="2"/>
{{if .Label}}<text x="{{.X}}" y="{{.Y}}" dy="0.35em">{{.Label}}</text>{{end}}
</g>
{{end}}<script type="text/ecmascript"><![CDATA[
	var details, searchbtn, matchedtxt, svg;
	function init(evt) {
		details = document.getElementById("details");
		matchedtxt = document.getElementById("matched");
		svg = document.getElementsByTagName("svg")[0];
		document.addEventListener("keydown", function(e) {
			if (e.ctrlKey && e.key === "f") { e.preventDefault(); search(); }
		});
	}
	function zoom(node) {
		var rect = node.getElementsByTagName("rect")[0];
		svg.setAttribute("viewBox", "0 0 " + rect.getAttribute("width") * 1 + " " + svg.getAttribute("height"));
	}
	function reset() {
		svg.setAttribute("viewBox", "0 0 {{.Width}} {{.Height}}");
	}
	function search() {
		var term = window.prompt("Enter search term:", "");
		if (term === null) return;
		var gs = document.getElementsByClassName("func_g");
		var matched = 0;
		for (var i = 0; i < gs.length; i++) {
			var title = gs[i].getElementsByTagName("title")[0].textContent;
			if (title.indexOf(term) !== -1) { matched++; gs[i].style.opacity = 1; }
			else { gs[i].style.opacity = 0.25; }
		}
		matchedtxt.textContent = matched + " matched";
	}
	(function() {
		var gs = document.getElementsByClassName("func_g");
		for (var i = 0; i < gs.length; i++) {
			gs[i].onclick = function() { zoom(this); };
		}
	})();
]]></script>
</svg>
`))
