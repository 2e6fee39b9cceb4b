package capability

import "errors"

// Sentinel errors returned by the registries and connections. Callers check
// them with errors.Is; the concrete message carries the identifying detail.
var (
	// ErrConnectionFailed indicates a transport or handshake failure while
	// connecting to a server.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrCapabilityNotFound indicates a lookup miss. It is returned for
	// unknown names regardless of the cause, so callers cannot distinguish
	// "never registered" from "source currently unavailable".
	ErrCapabilityNotFound = errors.New("capability not found")

	// ErrTimeout indicates a per-call deadline expired. The underlying
	// connection stays usable.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidConfiguration indicates a structurally invalid configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDuplicateIdentifier indicates a name conflict that is surfaced as an
	// explicit error rather than silently resolved.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
)

// IsTimeout reports whether err is a per-call timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCapabilityNotFound)
}
