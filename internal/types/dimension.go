package types

import "fmt"

// Dimension is one of the nine relationship dimensions. Using a closed
// enum means an unknown dimension name can only enter the system through
// ParseDimension, which rejects it before any store access.
type Dimension int

const (
	Rapport Dimension = iota
	Trust
	Anger
	Fear
	Respect
	Affection
	Familiarity
	Intimidation
	Formality
)

// AllDimensions lists every dimension in stable column order.
var AllDimensions = []Dimension{
	Rapport, Trust, Anger, Fear, Respect,
	Affection, Familiarity, Intimidation, Formality,
}

// SentimentDimensions are the dimensions the sentiment analyzer may
// adjust. Formality is excluded from the automated path; it only moves
// through administrative edits.
var SentimentDimensions = []Dimension{
	Rapport, Trust, Anger, Fear, Respect,
	Affection, Familiarity, Intimidation,
}

var dimensionNames = map[Dimension]string{
	Rapport:      "rapport",
	Trust:        "trust",
	Anger:        "anger",
	Fear:         "fear",
	Respect:      "respect",
	Affection:    "affection",
	Familiarity:  "familiarity",
	Intimidation: "intimidation",
	Formality:    "formality",
}

func (d Dimension) String() string {
	return dimensionNames[d]
}

// ParseDimension maps a dimension name to its enum value. Unknown names
// are rejected so a dynamic field name can never reach the store.
func ParseDimension(name string) (Dimension, error) {
	for d, n := range dimensionNames {
		if n == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown relationship dimension %q", name)
}

// Bounds returns the inclusive value range for the dimension.
func (d Dimension) Bounds() (min, max int) {
	if d == Formality {
		return -5, 5
	}
	return 0, 10
}

// Default is the value a freshly created metrics record starts with.
func (d Dimension) Default() int {
	switch d {
	case Rapport, Trust, Respect, Familiarity:
		return 5
	case Affection:
		return 3
	default:
		return 0
	}
}

// Clamp forces v into the dimension's bounds. Out-of-range updates are
// clamped, never rejected.
func (d Dimension) Clamp(v int) int {
	min, max := d.Bounds()
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
