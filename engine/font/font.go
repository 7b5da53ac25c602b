package font

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

var ErrFontNotFound = errors.New("font not found")

// Built-in families, always available without a font directory.
const (
	FamilyGo     = "Go"
	FamilyGoBold = "Go-Bold"
	FamilyGoMono = "Go-Mono"
)

type Provider interface {
	// Returns the parsed font registered under family. An empty family resolves to
	// the fallback family.
	Font(family string) (*truetype.Font, error)
}

// Registry holds parsed fonts keyed by case-insensitive family name.
type Registry struct {
	fonts    map[string]*truetype.Font
	names    map[string]string
	fallback string
}

// New returns a registry with the built-in Go fonts and every .ttf file found under
// basePath. A font's family is its file name without extension, so
// "Japanese/SansSerif-Regular.ttf" registers "SansSerif-Regular". An empty basePath
// registers the built-ins only.
func New(basePath string) (*Registry, error) {
	r := &Registry{
		fonts:    map[string]*truetype.Font{},
		names:    map[string]string{},
		fallback: FamilyGo,
	}

	for family, data := range map[string][]byte{
		FamilyGo:     goregular.TTF,
		FamilyGoBold: gobold.TTF,
		FamilyGoMono: gomono.TTF,
	} {
		if err := r.Register(family, data); err != nil {
			return nil, fmt.Errorf("failed to register built-in font %s: %w", family, err)
		}
	}

	if basePath == "" {
		return r, nil
	}
	err := filepath.WalkDir(basePath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), ".ttf") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		family := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if err := r.Register(family, data); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fonts from %s: %w", basePath, err)
	}
	return r, nil
}

// Register parses a TrueType font and stores it under family, replacing any previous
// font with the same name.
func (r *Registry) Register(family string, data []byte) error {
	parsed, err := truetype.Parse(data)
	if err != nil {
		return err
	}
	key := strings.ToLower(family)
	r.fonts[key] = parsed
	r.names[key] = family
	return nil
}

// SetFallback selects the family used for empty lookups and by Resolve.
func (r *Registry) SetFallback(family string) error {
	if _, ok := r.fonts[strings.ToLower(family)]; !ok {
		return fmt.Errorf("%w: %s", ErrFontNotFound, family)
	}
	r.fallback = family
	return nil
}

func (r *Registry) Font(family string) (*truetype.Font, error) {
	if family == "" {
		family = r.fallback
	}
	if f, ok := r.fonts[strings.ToLower(family)]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrFontNotFound, family)
}

// Resolve is like Font but falls back to the fallback family for unknown names.
func (r *Registry) Resolve(family string) (*truetype.Font, error) {
	f, err := r.Font(family)
	if errors.Is(err, ErrFontNotFound) {
		return r.Font(r.fallback)
	}
	return f, err
}

// Families lists registered family names in sorted order.
func (r *Registry) Families() []string {
	families := make([]string, 0, len(r.names))
	for _, name := range r.names {
		families = append(families, name)
	}
	sort.Strings(families)
	return families
}
