package layout

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var ErrFontUnavailable = errors.New("font unavailable")

// Font is a parsed TrueType/OpenType font shared between jobs. Faces are not
// safe for concurrent use, so every job draws through its own FaceCache.
type Font struct {
	otf *opentype.Font
}

// LoadFont reads the font at path. An empty path selects the embedded Go Regular face.
func LoadFont(path string) (*Font, error) {
	if path == "" {
		return ParseFont(goregular.TTF)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontUnavailable, err)
	}
	return ParseFont(data)
}

func ParseFont(data []byte) (*Font, error) {
	otf, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontUnavailable, err)
	}
	return &Font{otf: otf}, nil
}

func (f *Font) NewFaceCache() *FaceCache {
	return &FaceCache{font: f, faces: make(map[int]font.Face)}
}

// FaceCache keeps one face per integer pixel size.
type FaceCache struct {
	font  *Font
	faces map[int]font.Face
}

func (c *FaceCache) Face(size int) (font.Face, error) {
	if size < 1 {
		size = 1
	}
	if face, ok := c.faces[size]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(c.font.otf, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create face size %d: %w", size, err)
	}
	c.faces[size] = face
	return face, nil
}

// Measure returns the ink bounds of text at size pixels.
func (c *FaceCache) Measure(text string, size int) (int, int) {
	if text == "" {
		return 0, 0
	}
	face, err := c.Face(size)
	if err != nil {
		return 0, 0
	}
	b, _ := font.BoundString(face, text)
	return (b.Max.X - b.Min.X).Ceil(), (b.Max.Y - b.Min.Y).Ceil()
}

func (c *FaceCache) Close() error {
	var errs []error
	for size, face := range c.faces {
		errs = append(errs, face.Close())
		delete(c.faces, size)
	}
	return errors.Join(errs...)
}
