package text

import (
	"github.com/fzipp/bmfont"
)

// Codepoint drawn in place of glyphs the font lacks, when the font has it.
const UnknownCodepoint rune = -1

type Glyph struct {
	Codepoint rune
	X, Y      int
	Width     int
	Height    int
	XOffset   int
	YOffset   int
	XAdvance  int
	Page      int
}

type kerningPair struct {
	first, second rune
}

/**
 * @brief A bitmap font: glyph rectangles in a texture atlas plus the metrics
 * needed to lay them out.
 */
type Font struct {
	Face        string
	Size        int
	LineHeight  int
	Baseline    int
	AtlasWidth  int
	AtlasHeight int
	TabXAdvance float32

	glyphs   map[rune]Glyph
	kernings map[kerningPair]int
}

func NewFont(face string, size, lineHeight, baseline, atlasWidth, atlasHeight int, glyphs []Glyph) *Font {
	f := &Font{
		Face:        face,
		Size:        size,
		LineHeight:  lineHeight,
		Baseline:    baseline,
		AtlasWidth:  atlasWidth,
		AtlasHeight: atlasHeight,
		glyphs:      make(map[rune]Glyph, len(glyphs)),
		kernings:    make(map[kerningPair]int),
	}
	for _, g := range glyphs {
		f.glyphs[g.Codepoint] = g
	}
	f.setupTab()
	return f
}

// FromBitmapFont converts a loaded AngelCode descriptor.
func FromBitmapFont(font *bmfont.BitmapFont) *Font {
	d := font.Descriptor
	glyphs := make([]Glyph, 0, len(d.Chars))
	for _, c := range d.Chars {
		glyphs = append(glyphs, Glyph{
			Codepoint: rune(c.ID),
			X:         int(c.X),
			Y:         int(c.Y),
			Width:     int(c.Width),
			Height:    int(c.Height),
			XOffset:   int(c.XOffset),
			YOffset:   int(c.YOffset),
			XAdvance:  int(c.XAdvance),
			Page:      int(c.Page),
		})
	}
	f := NewFont(d.Info.Face, int(d.Info.Size), int(d.Common.LineHeight), int(d.Common.Base),
		int(d.Common.ScaleW), int(d.Common.ScaleH), glyphs)
	for pair, k := range d.Kerning {
		f.SetKerning(rune(pair.First), rune(pair.Second), int(k.Amount))
	}
	return f
}

func (f *Font) SetKerning(first, second rune, amount int) {
	f.kernings[kerningPair{first, second}] = amount
}

func (f *Font) Kerning(first, second rune) int {
	return f.kernings[kerningPair{first, second}]
}

// Glyph returns the glyph for r, falling back to the unknown glyph.
func (f *Font) Glyph(r rune) (Glyph, bool) {
	if g, ok := f.glyphs[r]; ok {
		return g, true
	}
	g, ok := f.glyphs[UnknownCodepoint]
	return g, ok
}

// Tabs advance by the tab glyph, or four spaces, or four times the font size.
func (f *Font) setupTab() {
	if g, ok := f.glyphs['\t']; ok {
		f.TabXAdvance = float32(g.XAdvance)
		return
	}
	if g, ok := f.glyphs[' ']; ok {
		f.TabXAdvance = float32(g.XAdvance * 4)
		return
	}
	f.TabXAdvance = float32(f.Size * 4)
}
