package graph

import (
	"fmt"

	"taskhdl/internal/diag"
)

// Category classifies how an argument is wired between a parent and a child.
type Category int

const (
	Scalar Category = iota
	IStream
	OStream
	MMap
	AsyncMMap
)

var categoryNames = [...]string{
	Scalar:    "scalar",
	IStream:   "istream",
	OStream:   "ostream",
	MMap:      "mmap",
	AsyncMMap: "async_mmap",
}

// ParseCategory maps the description spelling of a category.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s {
			return Category(c), nil
		}
	}
	return 0, fmt.Errorf("category %q: %w", s, diag.ErrUnsupportedArgumentCategory)
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool { return c >= Scalar && c <= AsyncMMap }

// IsMMap reports whether the argument is memory mapped, split-channel or not.
func (c Category) IsMMap() bool { return c == MMap || c == AsyncMMap }

// IsAsync reports whether the argument uses split-channel flow control.
func (c Category) IsAsync() bool { return c == AsyncMMap }

// IsStream reports whether the argument is a FIFO endpoint.
func (c Category) IsStream() bool { return c == IStream || c == OStream }

// IsInput reports whether data flows from the parent into the child.
func (c Category) IsInput() bool { return c == Scalar || c == IStream }

// IsOutput reports whether data flows from the child into the parent.
func (c Category) IsOutput() bool { return c == OStream }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Level distinguishes pre-synthesized leaf tasks from composite tasks.
type Level int

const (
	Leaf Level = iota
	Composite
)

func (l Level) String() string {
	if l == Composite {
		return "upper"
	}
	return "lower"
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "lower":
		*l = Leaf
	case "upper":
		*l = Composite
	default:
		return fmt.Errorf("task level %q: %w", text, diag.ErrMalformedDescription)
	}
	return nil
}
