package domain

import "time"

// Palette is assigned to page-room cursors by join order.
var Palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
	"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2",
}

func PaletteColor(n int) string {
	if n < 0 {
		n = -n
	}
	return Palette[n%len(Palette)]
}

// Cursor is a page-room pointer. X is a viewport percentage, Y an absolute document offset.
type Cursor struct {
	UserID       UserID    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Color        string    `json:"color"`
	LastUpdateAt time.Time `json:"lastUpdateAt"`
	IsActive     bool      `json:"isActive"`
	CurrentPage  string    `json:"currentPage"`
}

func ClampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
