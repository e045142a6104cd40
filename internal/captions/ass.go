package captions

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"videothingy/assembly-engine/internal/models"
)

// Style is the single ASS style every line uses.
type Style struct {
	PlayResX       int
	PlayResY       int
	FontName       string
	FontSize       int
	PrimaryColor   string // name or #RRGGBB
	OutlineColor   string
	HighlightColor string
	Bold           bool
	Outline        int
	Box            bool
	Alignment      int // numpad layout, 2 = bottom center
	MarginL        int
	MarginR        int
	MarginV        int
	// StyleWords applies bold, scale and color tags from Classify.
	StyleWords bool
}

// DefaultStyle is bold white Arial on a box, bottom center.
func DefaultStyle(width, height int) Style {
	return Style{
		PlayResX:       width,
		PlayResY:       height,
		FontName:       "Arial",
		FontSize:       48,
		PrimaryColor:   "white",
		OutlineColor:   "black",
		HighlightColor: "yellow",
		Bold:           true,
		Outline:        2,
		Box:            true,
		Alignment:      2,
		MarginL:        50,
		MarginR:        50,
		MarginV:        100,
		StyleWords:     true,
	}
}

var namedColors = map[string]string{
	"white":  "&H00FFFFFF",
	"black":  "&H00000000",
	"yellow": "&H0000FFFF",
	"red":    "&H000000FF",
	"green":  "&H0000FF00",
	"blue":   "&H00FF0000",
}

// Color converts a color name or #RRGGBB into ASS &HAABBGGRR. Anything else
// is white.
func Color(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if v, ok := namedColors[c]; ok {
		return v
	}
	if strings.HasPrefix(c, "&h") && len(c) == 10 {
		return "&H" + strings.ToUpper(c[2:])
	}
	if len(c) == 7 && c[0] == '#' {
		r, g, b := strings.ToUpper(c[1:3]), strings.ToUpper(c[3:5]), strings.ToUpper(c[5:7])
		return "&H00" + b + g + r
	}
	return namedColors["white"]
}

// FormatTimestamp renders seconds as H:MM:SS.cs.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	cs := int64(math.Round(seconds * 100))
	h := cs / 360000
	m := cs / 6000 % 60
	s := cs / 100 % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s Style) header() string {
	border := 1
	if s.Box {
		border = 3
	}
	var b strings.Builder
	b.WriteString("[Script Info]\n")
	b.WriteString("Title: Captions\n")
	b.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&b, "PlayResX: %d\n", s.PlayResX)
	fmt.Fprintf(&b, "PlayResY: %d\n", s.PlayResY)
	b.WriteString("WrapStyle: 0\n\n")
	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Default,%s,%d,%s,&H00FFFFFF,%s,&H80000000,%d,0,0,0,100,100,0,0,%d,%d,0,%d,%d,%d,%d,1\n\n",
		s.FontName, s.FontSize, Color(s.PrimaryColor), Color(s.OutlineColor), boolFlag(s.Bold),
		border, s.Outline, s.Alignment, s.MarginL, s.MarginR, s.MarginV)
	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	return b.String()
}

// escapeText keeps words from opening override blocks or line breaks.
var escapeText = strings.NewReplacer("{", "(", "}", ")", `\`, "/", "\n", " ", "\r", "")

// Dialogue renders one event line, newline included.
func (s Style) Dialogue(line models.CaptionLine) string {
	highlight := Color(s.HighlightColor)
	parts := make([]string, len(line.Words))
	for i, w := range line.Words {
		var tags string
		if s.StyleWords {
			tags = Tags(w.Word)
		}
		if i < len(line.Highlights) {
			h := line.Highlights[i]
			tags += fmt.Sprintf(`\t(%d,%d,\c%s&)`, h.StartMS, h.EndMS, highlight)
		}
		text := escapeText.Replace(w.Word)
		if tags == "" {
			parts[i] = text
			continue
		}
		// \r drops this word's overrides before the next word.
		parts[i] = "{" + tags + "}" + text + `{\r}`
	}
	return fmt.Sprintf("Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
		FormatTimestamp(line.Start), FormatTimestamp(line.End), strings.Join(parts, " "))
}

// WriteASS writes a complete ASS document with one Dialogue per line.
func WriteASS(w io.Writer, lines []models.CaptionLine, style Style) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(style.header()); err != nil {
		return err
	}
	for _, l := range lines {
		if len(l.Words) == 0 {
			continue
		}
		if _, err := bw.WriteString(style.Dialogue(l)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the document to path, creating parent directories.
func WriteFile(path string, lines []models.CaptionLine, style Style) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create caption dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create caption file: %w", err)
	}
	if err := WriteASS(f, lines, style); err != nil {
		f.Close()
		return fmt.Errorf("write captions: %w", err)
	}
	return f.Close()
}
