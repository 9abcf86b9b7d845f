package ptiff

import (
	"fmt"
	"strings"
)

// Strategy chooses the pyramid level a crop is served from.
type Strategy int

const (
	// FitPageTile picks the finest level on which the requested rectangle's
	// longer side fits within one tile.
	FitPageTile Strategy = iota
)

func (s Strategy) String() string {
	switch s {
	case FitPageTile:
		return "fit-page-tile"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps a strategy name onto a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(name)) {
	case "fitpagetile":
		return FitPageTile, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
	}
}

// SelectLevel picks a level for rect, given in finest-level coordinates,
// and returns its index together with rect scaled onto that level. Levels
// are ordered finest first and each halves the one before it. The scaled
// rectangle keeps at least one pixel in each dimension, so a region smaller
// than the level's reduction factor maps onto the pixel that covers it.
func SelectLevel(rect Rect, levels []Descriptor, strategy Strategy) (int, Rect, error) {
	if strategy != FitPageTile {
		return 0, Rect{}, fmt.Errorf("%w: %v", ErrInvalidStrategy, strategy)
	}
	if err := rect.Validate(); err != nil {
		return 0, Rect{}, err
	}
	if len(levels) == 0 {
		return 0, Rect{}, fmt.Errorf("%w: no pyramid levels", ErrIndexOutOfRange)
	}

	major := max(rect.Height(), rect.Width())
	level := len(levels) - 1
	for i, d := range levels {
		if !d.IsTiled() {
			return 0, Rect{}, fmt.Errorf("%w: level %d is not tiled", ErrUnsupportedLayout, i)
		}
		if major <= d.TileWidth<<i {
			level = i
			break
		}
	}
	return level, rect.Shift(level), nil
}
