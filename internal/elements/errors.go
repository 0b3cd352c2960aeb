package elements

import (
	"errors"
	"fmt"
)

var (
	// ErrMapNotFound means the element has no enclosing map element.
	ErrMapNotFound = errors.New("map not found")
	// ErrContainerNotFound matches *ContainerNotFoundError.
	ErrContainerNotFound = errors.New("map container not found")
	// ErrSourceNotFound matches *SourceNotFoundError.
	ErrSourceNotFound = errors.New("source not found")
	// ErrInvalidLayerType matches *InvalidLayerTypeError.
	ErrInvalidLayerType = errors.New("invalid layer type")
	// ErrMalformedPayload matches *MalformedPayloadError.
	ErrMalformedPayload = errors.New("malformed source payload")
	// ErrInconsistentState is reported when a map signals readiness without an engine.
	ErrInconsistentState = errors.New("inconsistent map state: map is not present")

	errSourceDetached = errors.New("source detached before registration")
)

// ContainerNotFoundError is returned when `map-id` references a missing node.
type ContainerNotFoundError struct {
	ID string
}

func (e *ContainerNotFoundError) Error() string {
	return fmt.Sprintf("map container %q not found", e.ID)
}

func (e *ContainerNotFoundError) Is(target error) bool { return target == ErrContainerNotFound }

// SourceNotFoundError is returned when a layer's source cannot be located.
type SourceNotFoundError struct {
	ID string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source(%s) not found", e.ID)
}

func (e *SourceNotFoundError) Is(target error) bool { return target == ErrSourceNotFound }

// InvalidLayerTypeError is returned for a layer type outside LayerTypes.
type InvalidLayerTypeError struct {
	Value string
}

func (e *InvalidLayerTypeError) Error() string {
	return fmt.Sprintf("attribute value (%q) is not a valid layer type", e.Value)
}

func (e *InvalidLayerTypeError) Is(target error) bool { return target == ErrInvalidLayerType }

// MalformedPayloadError is returned when an inline source body is not JSON.
type MalformedPayloadError struct {
	ID  string
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("source %q: malformed inline payload: %v", e.ID, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

func (e *MalformedPayloadError) Is(target error) bool { return target == ErrMalformedPayload }
