package preset

import "errors"

var (
	// ErrPresetExists is returned by Add for a name that is already registered.
	ErrPresetExists = errors.New("preset already exists")

	// ErrNameCollision is returned by Add when a name differs from a
	// registered one only by case, which would share its storage prefix.
	ErrNameCollision = errors.New("preset name collides with an existing preset")

	// ErrReservedName is returned for names that cannot be added or removed.
	ErrReservedName = errors.New("reserved preset name")

	// ErrInvalidName is returned for empty or malformed names.
	ErrInvalidName = errors.New("invalid preset name")
)
