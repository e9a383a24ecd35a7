package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate is the logical (cylinder, head, sector) address of a sector.
type Coordinate struct {
	Cylinder int `yaml:"cylinder" json:"cylinder"`
	Head     int `yaml:"head" json:"head"`
	Sector   int `yaml:"sector" json:"sector"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.Cylinder, c.Head, c.Sector)
}

// IsZero reports whether c is the zero coordinate, which is used as "unset".
func (c Coordinate) IsZero() bool {
	return c == Coordinate{}
}

// Less orders coordinates by cylinder, head, then sector.
func (c Coordinate) Less(o Coordinate) bool {
	if c.Cylinder != o.Cylinder {
		return c.Cylinder < o.Cylinder
	}
	if c.Head != o.Head {
		return c.Head < o.Head
	}
	return c.Sector < o.Sector
}

// ParseCoordinate parses "c,h,s" (parentheses and spaces allowed).
func ParseCoordinate(s string) (Coordinate, error) {
	trimmed := strings.Trim(strings.TrimSpace(s), "()")
	parts := strings.Split(trimmed, ",")
	if len(parts) != 3 {
		return Coordinate{}, fmt.Errorf("coordinate %q: want cylinder,head,sector", s)
	}

	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Coordinate{}, fmt.Errorf("coordinate %q: %w", s, err)
		}
		if v < 0 {
			return Coordinate{}, fmt.Errorf("coordinate %q: negative component", s)
		}
		vals[i] = v
	}
	return Coordinate{Cylinder: vals[0], Head: vals[1], Sector: vals[2]}, nil
}
