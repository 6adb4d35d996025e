package reservation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInternalFault = errors.New("internal fault")
	ErrDuplicateID   = errors.New("booking id already issued")
	ErrNextID        = errors.New("get next id from generator")
	ErrIDExhausted   = errors.New("no unique booking id after retries")
)

const (
	KindValidation = "validation"
	KindCapacity   = "capacity"
	KindInternal   = "internal"
)

// ValidationError lists every offending request field with its messages.
type ValidationError struct {
	fields map[string][]string
}

func newValidationError() *ValidationError {
	return &ValidationError{
		fields: make(map[string][]string),
	}
}

func IsValidationError(err error) *ValidationError {
	if err == nil {
		return nil
	}

	var validationError *ValidationError

	if errors.As(err, &validationError) {
		return validationError
	}

	return nil
}

func (ve *ValidationError) fieldsCount() int {
	return len(ve.fields)
}

func (ve *ValidationError) addError(field, msg string) {
	ve.fields[field] = append(ve.fields[field], msg)
}

func (ve *ValidationError) Error() string {
	names := ve.FieldNames()
	parts := make([]string, 0, len(names))

	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(ve.fields[name], "; ")))
	}

	return "invalid request: " + strings.Join(parts, ", ")
}

func (ve *ValidationError) Fields() map[string][]string {
	return ve.fields
}

// FieldNames returns the offending fields in a stable order.
func (ve *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(ve.fields))
	for name := range ve.fields {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (ve *ValidationError) Has(field string) bool {
	_, ok := ve.fields[field]

	return ok
}

// CapacityError is the normal "slot is full" outcome. Occupancy is the count
// observed inside the store's critical section.
type CapacityError struct {
	Slot      SlotKey
	Occupancy int
	Capacity  int
}

func NewCapacityError(slot SlotKey, occupancy, capacity int) *CapacityError {
	return &CapacityError{Slot: slot, Occupancy: occupancy, Capacity: capacity}
}

func IsCapacityError(err error) *CapacityError {
	if err == nil {
		return nil
	}

	var capacityError *CapacityError

	if errors.As(err, &capacityError) {
		return capacityError
	}

	return nil
}

func (ce *CapacityError) Error() string {
	return fmt.Sprintf("slot %s is full (%d of %d)", ce.Slot, ce.Occupancy, ce.Capacity)
}

func (ce *CapacityError) SlotOccupancy() Occupancy {
	return NewOccupancy(ce.Slot, ce.Occupancy, ce.Capacity)
}

// InternalError is a retryable failure; Submit leaves no partial state behind.
type InternalError struct {
	Reason string
	Err    error
}

func newInternalError(reason string, err error) *InternalError {
	return &InternalError{Reason: reason, Err: err}
}

func IsInternalError(err error) *InternalError {
	if err == nil {
		return nil
	}

	var internalError *InternalError

	if errors.As(err, &internalError) {
		return internalError
	}

	return nil
}

func (ie *InternalError) Error() string {
	if ie.Err == nil {
		return ie.Reason
	}

	return fmt.Sprintf("%s: %v", ie.Reason, ie.Err)
}

func (ie *InternalError) Unwrap() error {
	return ie.Err
}

func (ie *InternalError) Is(target error) bool {
	return target == ErrInternalFault
}

// RejectionKind classifies an error returned by Submit.
func RejectionKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidationError(err) != nil:
		return KindValidation
	case IsCapacityError(err) != nil:
		return KindCapacity
	default:
		return KindInternal
	}
}
