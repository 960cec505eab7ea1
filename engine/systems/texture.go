package systems

import (
	"fmt"
	"image"
	"image/color"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type TextureBackend interface {
	CreateTexture(name string, img *image.RGBA) (metadata.TextureHandle, error)
	DestroyTexture(handle metadata.TextureHandle) error
}

type TextureSystem struct {
	DefaultTexture *metadata.Texture

	textures map[string]*metadata.Texture
	ids      *core.Interner
	backend  TextureBackend
	images   ImageLoader
}

// NewTextureSystem creates the system and its 1x1 white default texture.
func NewTextureSystem(backend TextureBackend, images ImageLoader) (*TextureSystem, error) {
	ts := &TextureSystem{
		textures: make(map[string]*metadata.Texture),
		ids:      core.NewInterner(),
		backend:  backend,
		images:   images,
	}

	white := image.NewRGBA(image.Rect(0, 0, 1, 1))
	white.SetRGBA(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	t, err := ts.Create(metadata.DefaultTextureName, white)
	if err != nil {
		core.LogError("failed to create the default texture: %s", err)
		return nil, err
	}
	ts.DefaultTexture = t
	return ts, nil
}

// Create uploads img under name.
func (ts *TextureSystem) Create(name string, img *image.RGBA) (*metadata.Texture, error) {
	if _, exists := ts.textures[name]; exists {
		return nil, fmt.Errorf("texture %q: %w", name, core.ErrDuplicateName)
	}
	handle, err := ts.backend.CreateTexture(name, img)
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", name, err)
	}
	bounds := img.Bounds()
	t := &metadata.Texture{
		ID:              ts.ids.Intern(name),
		Name:            name,
		Width:           uint32(bounds.Dx()),
		Height:          uint32(bounds.Dy()),
		HasTransparency: !img.Opaque(),
		Handle:          handle,
	}
	ts.textures[name] = t
	core.LogDebug("texture %q created (%dx%d)", name, t.Width, t.Height)
	return t, nil
}

// Acquire returns the texture called name, loading it through the image loader on first use.
func (ts *TextureSystem) Acquire(name string) (*metadata.Texture, error) {
	if t, ok := ts.textures[name]; ok {
		return t, nil
	}
	if ts.images == nil {
		return nil, fmt.Errorf("texture %q: %w", name, core.ErrNotFound)
	}
	img, err := ts.images.LoadImage(name)
	if err != nil {
		core.LogWarn("failed to load texture %q: %s", name, err)
		return nil, err
	}
	return ts.Create(name, img)
}

func (ts *TextureSystem) Get(name string) (*metadata.Texture, error) {
	t, ok := ts.textures[name]
	if !ok {
		return nil, fmt.Errorf("texture %q: %w", name, core.ErrNotFound)
	}
	return t, nil
}

func (ts *TextureSystem) Shutdown() error {
	for name, t := range ts.textures {
		if err := ts.backend.DestroyTexture(t.Handle); err != nil {
			core.LogWarn("failed to destroy texture %q: %s", name, err)
		}
	}
	clear(ts.textures)
	return nil
}
