package assets

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fzipp/bmfont"

	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type AssetInfo struct {
	// Slash separated and relative to the asset root.
	Path    string
	Type    AssetType
	ModTime time.Time
}

/**
 * @brief Indexes the files below the asset root and loads them on request.
 * With watching enabled the index follows files being added and removed;
 * assets that were already loaded are never reloaded.
 */
type AssetManager struct {
	root   string
	assets map[string]AssetInfo
	mutex  sync.RWMutex

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewAssetManager(root string) (*AssetManager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &AssetManager{
		root:   abs,
		assets: make(map[string]AssetInfo),
	}, nil
}

// Initialize builds the index. With watch, a goroutine keeps it current until Shutdown.
func (am *AssetManager) Initialize(watch bool) error {
	info, err := os.Stat(am.root)
	if err != nil {
		return fmt.Errorf("asset root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("asset root %s is not a directory", am.root)
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		am.fsnotify = w
		am.done = make(chan struct{})
	}
	if err := am.watchRecursive(am.root); err != nil {
		am.Shutdown()
		return err
	}
	if watch {
		am.wg.Add(1)
		go am.start()
	}
	core.LogInfo("asset manager indexed %d files under %s", am.Count(), am.root)
	return nil
}

func (am *AssetManager) Shutdown() error {
	if am.fsnotify == nil {
		return nil
	}
	if am.done != nil {
		close(am.done)
		am.wg.Wait()
		am.done = nil
	}
	err := am.fsnotify.Close()
	am.fsnotify = nil
	return err
}

func (am *AssetManager) Root() string {
	return am.root
}

func (am *AssetManager) Count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

func (am *AssetManager) Info(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[cleanPath(path)]
	return info, ok
}

// List returns the indexed paths of the given type in lexical order.
func (am *AssetManager) List(assetType AssetType) []string {
	am.mutex.RLock()
	var out []string
	for p, info := range am.assets {
		if info.Type == assetType {
			out = append(out, p)
		}
	}
	am.mutex.RUnlock()
	slices.Sort(out)
	return out
}

func (am *AssetManager) LoadMesh(path string) (*metadata.Mesh, error) {
	full, err := am.resolve(path, AssetTypeMesh)
	if err != nil {
		return nil, err
	}
	return loaders.LoadMesh(full)
}

// LoadImage finds an image by name: a path with an image extension is used as
// is, otherwise textures/<name> and then <name> are tried with every known extension.
func (am *AssetManager) LoadImage(name string) (*image.RGBA, error) {
	candidates := []string{name}
	if !loaders.IsImage(name) {
		candidates = candidates[:0]
		for _, dir := range []string{"textures/", ""} {
			for _, ext := range loaders.ImageExtensions {
				candidates = append(candidates, dir+name+ext)
			}
		}
	}
	for _, c := range candidates {
		if full, err := am.resolve(c, AssetTypeImage); err == nil {
			return loaders.LoadImage(full)
		}
	}
	return nil, fmt.Errorf("image %q: %w", name, core.ErrNotFound)
}

func (am *AssetManager) LoadSource(path string) ([]byte, error) {
	full, err := am.resolve(path, AssetTypeShaderSource)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// LoadShaderConfigs reads every shader declaration in the index.
func (am *AssetManager) LoadShaderConfigs() ([]*metadata.ShaderConfig, error) {
	var out []*metadata.ShaderConfig
	for _, p := range am.List(AssetTypeShader) {
		cfg, err := loaders.LoadShaderConfig(am.abs(p))
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// LoadMaterials reads every material file in the index.
func (am *AssetManager) LoadMaterials() ([]*metadata.MaterialConfig, error) {
	var out []*metadata.MaterialConfig
	for _, p := range am.List(AssetTypeMaterial) {
		cfg, err := loaders.LoadMaterial(am.abs(p))
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// LoadBitmapFont loads fonts/<name>.fnt.
func (am *AssetManager) LoadBitmapFont(name string) (*bmfont.BitmapFont, error) {
	full, err := am.resolve("fonts/"+name+loaders.BitmapFontExtension, AssetTypeBitmapFont)
	if err != nil {
		return nil, err
	}
	return loaders.LoadBitmapFont(full)
}

func (am *AssetManager) resolve(path string, assetType AssetType) (string, error) {
	info, ok := am.Info(path)
	if !ok || info.Type != assetType {
		return "", fmt.Errorf("%s %q: %w", assetType, path, core.ErrNotFound)
	}
	return am.abs(info.Path), nil
}

func (am *AssetManager) abs(rel string) string {
	return filepath.Join(am.root, filepath.FromSlash(rel))
}

func (am *AssetManager) rel(path string) (string, bool) {
	rel, err := filepath.Rel(am.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func cleanPath(path string) string {
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "./")
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)
		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)
		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	switch {
	case e.Has(fsnotify.Create):
		s, err := os.Stat(e.Name)
		if err != nil {
			return
		}
		if s.IsDir() {
			if err := am.watchRecursive(e.Name); err != nil {
				core.LogWarn("asset watcher: %s", err)
			}
			return
		}
		am.handleFileEvent(e.Name, s.ModTime())
	case e.Has(fsnotify.Write):
		if s, err := os.Stat(e.Name); err == nil && !s.IsDir() {
			am.handleFileEvent(e.Name, s.ModTime())
		}
	case e.Has(fsnotify.Remove), e.Has(fsnotify.Rename):
		// Can't stat what is gone, so drop it both as a file and as a directory.
		am.removeAsset(e.Name)
	}
}

// watchRecursive indexes every file under path and, when watching, adds every directory.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && walkPath != am.root {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if am.fsnotify != nil {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		am.handleFileEvent(walkPath, info.ModTime())
		return nil
	})
}

func (am *AssetManager) handleFileEvent(path string, modTime time.Time) {
	rel, ok := am.rel(path)
	if !ok {
		return
	}
	assetType := determineAssetType(rel)
	if assetType == AssetTypeNone {
		return
	}
	am.mutex.Lock()
	am.assets[rel] = AssetInfo{Path: rel, Type: assetType, ModTime: modTime}
	am.mutex.Unlock()
}

func (am *AssetManager) removeAsset(path string) {
	rel, ok := am.rel(path)
	if !ok {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, rel)
	prefix := rel + "/"
	for p := range am.assets {
		if strings.HasPrefix(p, prefix) {
			delete(am.assets, p)
		}
	}
}
