// internal/thresholds/table.go
package thresholds

import (
	"errors"
	"fmt"
	"sort"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

var (
	ErrInvalidBounds = errors.New("invalid threshold bounds")
	ErrUnknownPreset = errors.New("unknown threshold preset")
)

// Status is the classification of a single value against its bounds.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Bounds for one quantity. Nil means the bound is not defined.
type Bounds struct {
	Label       string   `json:"label" mapstructure:"label"`
	Min         *float64 `json:"min,omitempty" mapstructure:"min"`
	Max         *float64 `json:"max,omitempty" mapstructure:"max"`
	CriticalMin *float64 `json:"critical_min,omitempty" mapstructure:"critical_min"`
	CriticalMax *float64 `json:"critical_max,omitempty" mapstructure:"critical_max"`
}

// Breach describes how a value relates to its bounds.
type Breach struct {
	Status Status
	Limit  float64
	Above  bool
}

// Evaluate compares v against the bounds, critical bounds first.
func (b Bounds) Evaluate(v float64) Breach {
	switch {
	case b.CriticalMax != nil && v > *b.CriticalMax:
		return Breach{Status: StatusCritical, Limit: *b.CriticalMax, Above: true}
	case b.CriticalMin != nil && v < *b.CriticalMin:
		return Breach{Status: StatusCritical, Limit: *b.CriticalMin}
	case b.Max != nil && v > *b.Max:
		return Breach{Status: StatusWarning, Limit: *b.Max, Above: true}
	case b.Min != nil && v < *b.Min:
		return Breach{Status: StatusWarning, Limit: *b.Min}
	}
	return Breach{Status: StatusNormal}
}

func (b Bounds) validate() error {
	pairs := []struct {
		lo, hi *float64
		desc   string
	}{
		{b.Min, b.Max, "min > max"},
		{b.CriticalMin, b.Min, "critical_min > min"},
		{b.Max, b.CriticalMax, "max > critical_max"},
		{b.CriticalMin, b.CriticalMax, "critical_min > critical_max"},
	}
	for _, p := range pairs {
		if p.lo != nil && p.hi != nil && *p.lo > *p.hi {
			return fmt.Errorf("%w: %s", ErrInvalidBounds, p.desc)
		}
	}
	if b.Min == nil && b.Max == nil && b.CriticalMin == nil && b.CriticalMax == nil {
		return fmt.Errorf("%w: no bound defined", ErrInvalidBounds)
	}
	return nil
}

func (b Bounds) clone() Bounds {
	cp := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	return Bounds{
		Label:       b.Label,
		Min:         cp(b.Min),
		Max:         cp(b.Max),
		CriticalMin: cp(b.CriticalMin),
		CriticalMax: cp(b.CriticalMax),
	}
}

// Table is the read-only threshold configuration shared by every evaluator.
type Table struct {
	bounds map[data.Quantity]Bounds
	order  []data.Quantity
}

// New validates and freezes a threshold table.
func New(bounds map[data.Quantity]Bounds) (*Table, error) {
	t := &Table{bounds: make(map[data.Quantity]Bounds, len(bounds))}
	for q, b := range bounds {
		if err := b.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", q, err)
		}
		if b.Label == "" {
			b.Label = string(q)
		}
		t.bounds[q] = b.clone()
		t.order = append(t.order, q)
	}
	sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })
	return t, nil
}

// Lookup returns the bounds configured for q.
func (t *Table) Lookup(q data.Quantity) (Bounds, bool) {
	b, ok := t.bounds[q]
	if !ok {
		return Bounds{}, false
	}
	return b.clone(), true
}

// Quantities lists the configured quantities in evaluation order.
func (t *Table) Quantities() []data.Quantity {
	out := make([]data.Quantity, len(t.order))
	copy(out, t.order)
	return out
}

// Classify returns the status of v for quantity q. Quantities without bounds are normal.
func (t *Table) Classify(q data.Quantity, v float64) Status {
	b, ok := t.bounds[q]
	if !ok {
		return StatusNormal
	}
	return b.Evaluate(v).Status
}

// Export returns a copy of the table suitable for JSON encoding.
func (t *Table) Export() map[data.Quantity]Bounds {
	out := make(map[data.Quantity]Bounds, len(t.bounds))
	for q, b := range t.bounds {
		out[q] = b.clone()
	}
	return out
}
