// Package recipe loads repair recipes: YAML files describing one repair
// session from start to finish, so a repair can be rerun and reviewed.
//
//	media: q1
//	target: 7,0,3
//	length: 255
//	drop: [10]
//	hole: {row: 0, prefix_token: 0, suffix_token: 2, width: 16, trim_prefix: true, trim_suffix: true}
//	accept: true
package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

// Coord is a coordinate written either as "c,h,s" or as a mapping.
type Coord struct {
	models.Coordinate
}

func (c *Coord) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		at, err := models.ParseCoordinate(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		c.Coordinate = at
		return nil
	}
	return node.Decode(&c.Coordinate)
}

func (c Coord) MarshalYAML() (any, error) {
	return fmt.Sprintf("%d,%d,%d", c.Cylinder, c.Head, c.Sector), nil
}

type Hole struct {
	Row         int  `yaml:"row"`
	PrefixToken int  `yaml:"prefix_token"`
	SuffixToken int  `yaml:"suffix_token"`
	TrimPrefix  bool `yaml:"trim_prefix"`
	TrimSuffix  bool `yaml:"trim_suffix"`
	Width       int  `yaml:"width"`
}

func (h Hole) Spec() fluxmend.HoleSpec {
	return fluxmend.HoleSpec{
		Row:         h.Row,
		PrefixToken: h.PrefixToken,
		SuffixToken: h.SuffixToken,
		TrimPrefix:  h.TrimPrefix,
		TrimSuffix:  h.TrimSuffix,
		Width:       h.Width,
	}
}

// Locate reaches the target through its interleave neighbour. With Align
// set, the located spans replace the readings and go through the
// consensus report instead of being validated directly.
type Locate struct {
	Neighbor Coord `yaml:"neighbor"`
	MaxGap   int   `yaml:"max_gap"`
	Align    bool  `yaml:"align,omitempty"`
}

// aligns reports whether the located spans feed the consensus report.
func (l *Locate) aligns(hole *Hole) bool {
	return l != nil && (l.Align || hole != nil)
}

// Recipe is one repair. Drop ranks are applied in order, each against the
// report left by the previous drop. With both Locate and Hole set, the
// located spans replace the readings and the hole is searched in them,
// as if Locate.Align were set.
type Recipe struct {
	Media  string  `yaml:"media,omitempty"`
	Target Coord   `yaml:"target"`
	Length int     `yaml:"length"`
	Drop   []int   `yaml:"drop,omitempty"`
	Hole   *Hole   `yaml:"hole,omitempty"`
	Locate *Locate `yaml:"locate,omitempty"`
	Accept bool    `yaml:"accept"`
}

var ErrInvalid = errors.New("invalid recipe")

// Load reads and validates a recipe file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates a recipe. Unknown keys are rejected.
func Parse(data []byte) (*Recipe, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var r Recipe
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Recipe) Validate() error {
	switch {
	case r.Length <= 0:
		return fmt.Errorf("%w: length must be positive", ErrInvalid)
	case r.Hole != nil && r.Hole.Width <= 0:
		return fmt.Errorf("%w: hole width must be positive", ErrInvalid)
	case r.Hole != nil && r.Hole.PrefixToken >= r.Hole.SuffixToken:
		return fmt.Errorf("%w: hole prefix token %d is not before suffix token %d", ErrInvalid, r.Hole.PrefixToken, r.Hole.SuffixToken)
	case r.Locate != nil && r.Locate.Neighbor.IsZero():
		return fmt.Errorf("%w: locate needs a neighbor", ErrInvalid)
	case r.Locate != nil && r.Locate.Neighbor.Coordinate == r.Target.Coordinate:
		return fmt.Errorf("%w: neighbor %s is the target", ErrInvalid, r.Target)
	case r.Locate != nil && r.Locate.MaxGap <= 0:
		return fmt.Errorf("%w: locate needs a positive max_gap", ErrInvalid)
	case r.Accept && r.Hole == nil && (r.Locate == nil || r.Locate.Align):
		return fmt.Errorf("%w: accept needs a hole or a locate step", ErrInvalid)
	case len(r.Drop) > 0 && r.Locate != nil && !r.Locate.aligns(r.Hole):
		return fmt.Errorf("%w: drop has no report to act on; set locate.align or add a hole", ErrInvalid)
	}
	for _, rank := range r.Drop {
		if rank < 0 {
			return fmt.Errorf("%w: negative drop rank %d", ErrInvalid, rank)
		}
	}
	return nil
}
