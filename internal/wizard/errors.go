package wizard

import "errors"

var (
	// ErrBusy is returned while another report generation is in flight
	ErrBusy = errors.New("report generation already in progress")
	// ErrNotReady means no panel is selected or the title is empty
	ErrNotReady = errors.New("select at least one panel and enter a report title")
	// ErrStepIncomplete blocks moving past a step whose requirements are unmet
	ErrStepIncomplete = errors.New("select at least one dashboard and one panel")
	// ErrStepUnavailable is returned when jumping beyond the highest step reached
	ErrStepUnavailable = errors.New("step not reached yet")
	// ErrInvalidLogo is returned for logos with a wrong type or size
	ErrInvalidLogo = errors.New("invalid logo file")
	// ErrInvalidTimeRange is returned for unknown presets or incomplete ranges
	ErrInvalidTimeRange = errors.New("invalid time range")
	// ErrInvalidTemplate is returned for empty names or out of range indexes
	ErrInvalidTemplate = errors.New("invalid template")
)
