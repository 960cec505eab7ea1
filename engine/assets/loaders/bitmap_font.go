package loaders

import (
	"fmt"

	"github.com/fzipp/bmfont"
)

/** @brief Extension of AngelCode bitmap font descriptors. */
const BitmapFontExtension = ".fnt"

// LoadBitmapFont reads a .fnt descriptor together with its page sheets.
func LoadBitmapFont(path string) (*bmfont.BitmapFont, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap font %s: %w", path, err)
	}
	if len(font.Descriptor.Chars) == 0 {
		return nil, fmt.Errorf("bitmap font %s has no glyphs", path)
	}
	return font, nil
}
