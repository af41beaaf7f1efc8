package engine

import (
	"fmt"
	"time"
)

// AvailabilityPolicy decides how a combination without any enabled weekly
// window is treated.
type AvailabilityPolicy string

const (
	// AvailabilityUnconstrained treats a combination without windows as
	// reservable at any hour.
	AvailabilityUnconstrained AvailabilityPolicy = "unconstrained"
	// AvailabilityFailClosed treats a combination without windows as never
	// reservable.
	AvailabilityFailClosed AvailabilityPolicy = "fail_closed"
)

// InventoryPolicy decides how a combination without an inventory record is
// treated.
type InventoryPolicy string

const (
	// InventorySingleUnit treats a missing record as exactly one unit.
	InventorySingleUnit InventoryPolicy = "single_unit"
	// InventoryFailClosed treats a missing record as zero units.
	InventoryFailClosed InventoryPolicy = "fail_closed"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultSlotDurationHours = 1.0
	DefaultWorkStartHour     = 6
	DefaultWorkEndHour       = 18
	DefaultMaxDays           = 7
)

// HourWindow is a daily working-hour window, End exclusive.
type HourWindow struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Options configures one engine. Zero values pick the documented defaults:
// one-hour slots, working hours 6..18, a seven day horizon, UTC, the wall
// clock, unconstrained availability and single-unit inventory.
type Options struct {
	SlotDurationHours   float64
	WorkingHours        HourWindow
	FullDay             bool
	MaxDays             int
	Location            *time.Location
	Now                 func() time.Time
	MissingAvailability AvailabilityPolicy
	MissingInventory    InventoryPolicy
}

// DefaultOptions returns Options with every default filled in.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.SlotDurationHours == 0 {
		o.SlotDurationHours = DefaultSlotDurationHours
	}
	if o.WorkingHours == (HourWindow{}) {
		o.WorkingHours = HourWindow{Start: DefaultWorkStartHour, End: DefaultWorkEndHour}
	}
	if o.MaxDays == 0 {
		o.MaxDays = DefaultMaxDays
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.MissingAvailability == "" {
		o.MissingAvailability = AvailabilityUnconstrained
	}
	if o.MissingInventory == "" {
		o.MissingInventory = InventorySingleUnit
	}
	return o
}

// Validate checks options after defaults have been applied.
func (o Options) Validate() error {
	o = o.withDefaults()
	if o.SlotDurationHours <= 0 {
		return fmt.Errorf("%w: slot duration must be positive, got %v", ErrInvalidOptions, o.SlotDurationHours)
	}
	if o.SlotDurationHours > 24 {
		return fmt.Errorf("%w: slot duration must not exceed 24h, got %v", ErrInvalidOptions, o.SlotDurationHours)
	}
	if !o.FullDay {
		w := o.WorkingHours
		if w.Start < 0 || w.End > 24 || w.Start >= w.End {
			return fmt.Errorf("%w: invalid working hours %d..%d", ErrInvalidOptions, w.Start, w.End)
		}
	}
	if o.MaxDays < 0 {
		return fmt.Errorf("%w: max days must be positive, got %d", ErrInvalidOptions, o.MaxDays)
	}
	switch o.MissingAvailability {
	case AvailabilityUnconstrained, AvailabilityFailClosed:
	default:
		return fmt.Errorf("%w: unknown availability policy %q", ErrInvalidOptions, o.MissingAvailability)
	}
	switch o.MissingInventory {
	case InventorySingleUnit, InventoryFailClosed:
	default:
		return fmt.Errorf("%w: unknown inventory policy %q", ErrInvalidOptions, o.MissingInventory)
	}
	return nil
}

func (o Options) slotDuration() time.Duration {
	return time.Duration(o.SlotDurationHours * float64(time.Hour))
}

// dayBounds returns the first and last (exclusive) hour of a scheduling day.
func (o Options) dayBounds() (int, int) {
	if o.FullDay {
		return 0, 24
	}
	return o.WorkingHours.Start, o.WorkingHours.End
}
