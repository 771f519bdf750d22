// Package maps assembles the HD Radio data-service map products: the 3x3
// traffic tile grid and the weather radar overlay composited onto a base map.
package maps

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"strconv"
	"strings"

	// Broadcast tiles and overlays arrive in any of these formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// TileRef identifies one traffic tile's grid position and generation.
type TileRef struct {
	Row       int    // 1..3
	Col       int    // 1..3
	Timestamp string // broadcast date_time, e.g. "20251031_1614"
}

// ParseTileName extracts the grid position from a tile file name of the form
// TMT_<region>_<row>_<col>_<date>_<time>_<hash>.ext, tolerating a numeric
// prefix the decoder may prepend before TMT_.
func ParseTileName(name string) (TileRef, error) {
	idx := strings.Index(name, "TMT_")
	if idx < 0 {
		return TileRef{}, fmt.Errorf("not a traffic tile name: %q", name)
	}
	parts := strings.Split(name[idx:], "_")
	if len(parts) < 6 {
		return TileRef{}, fmt.Errorf("short traffic tile name: %q", name)
	}
	row, err := strconv.Atoi(parts[2])
	if err != nil {
		return TileRef{}, fmt.Errorf("tile row in %q: %w", name, err)
	}
	col, err := strconv.Atoi(parts[3])
	if err != nil {
		return TileRef{}, fmt.Errorf("tile col in %q: %w", name, err)
	}
	if row < 1 || row > 3 || col < 1 || col > 3 {
		return TileRef{}, fmt.Errorf("tile position (%d,%d) outside 3x3 grid", row, col)
	}
	return TileRef{Row: row, Col: col, Timestamp: parts[4] + "_" + parts[5]}, nil
}

// Assembler accumulates tiles for one broadcast generation and reports when
// the 3x3 grid completes. It is not safe for concurrent use; the session
// serialises access.
type Assembler struct {
	timestamp string
	tiles     map[[2]int]string
	composed  bool
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{tiles: make(map[[2]int]string)}
}

// Timestamp returns the generation currently being collected.
func (a *Assembler) Timestamp() string { return a.timestamp }

// Len returns how many distinct positions are populated.
func (a *Assembler) Len() int { return len(a.tiles) }

// Add records a resolved tile path. A tile from a different generation
// discards everything collected so far; nothing from the old set may leak
// into the new composition. Add reports whether the grid just became
// complete — extra tiles for an already-composed set are a no-op.
func (a *Assembler) Add(ref TileRef, path string) bool {
	if ref.Timestamp != a.timestamp {
		a.tiles = make(map[[2]int]string)
		a.timestamp = ref.Timestamp
		a.composed = false
	}
	if a.composed {
		return false
	}
	a.tiles[[2]int{ref.Row, ref.Col}] = path
	if len(a.tiles) == 9 {
		a.composed = true
		return true
	}
	return false
}

// Paths returns a copy of the collected position-to-path mapping.
func (a *Assembler) Paths() map[[2]int]string {
	out := make(map[[2]int]string, len(a.tiles))
	for k, v := range a.tiles {
		out[k] = v
	}
	return out
}

// Compose loads the nine tiles and paints them into a single image three
// tiles wide and three tall. All tiles must share identical pixel dimensions.
func Compose(paths map[[2]int]string) (image.Image, error) {
	if len(paths) != 9 {
		return nil, fmt.Errorf("tile set incomplete: %d of 9", len(paths))
	}

	tiles := make(map[[2]int]image.Image, 9)
	var tileW, tileH int
	for pos, path := range paths {
		img, err := loadImage(path)
		if err != nil {
			return nil, fmt.Errorf("tile (%d,%d): %w", pos[0], pos[1], err)
		}
		b := img.Bounds()
		if tileW == 0 {
			tileW, tileH = b.Dx(), b.Dy()
		} else if b.Dx() != tileW || b.Dy() != tileH {
			return nil, fmt.Errorf("tile (%d,%d) is %dx%d, want %dx%d",
				pos[0], pos[1], b.Dx(), b.Dy(), tileW, tileH)
		}
		tiles[pos] = img
	}

	combined := image.NewRGBA(image.Rect(0, 0, tileW*3, tileH*3))
	draw.Draw(combined, combined.Bounds(), image.Black, image.Point{}, draw.Src)
	for pos, img := range tiles {
		x := (pos[1] - 1) * tileW
		y := (pos[0] - 1) * tileH
		r := image.Rect(x, y, x+tileW, y+tileH)
		draw.Draw(combined, r, img, img.Bounds().Min, draw.Src)
	}
	return combined, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
