package orders

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrEmptyPatch       = errors.New("patch has no fields")
	ErrStatusRegression = errors.New("status cannot move backward")
)

// ValidationError carries per-field problems with a create or update payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ValidateDraft checks a draft before it reaches a store.
func ValidateDraft(d Draft) error {
	ve := &ValidationError{}
	if strings.TrimSpace(d.RoomNumber) == "" {
		ve.add("roomNumber", "required")
	}
	if strings.TrimSpace(d.MobileNumber) == "" {
		ve.add("mobileNumber", "required")
	}
	if len(d.Items) == 0 {
		ve.add("items", "at least one item is required")
	}
	for i, it := range d.Items {
		key := fmt.Sprintf("items[%d]", i)
		switch {
		case it.Price < 0:
			ve.add(key+".price", "must not be negative")
		case it.PurchasePrice != nil && *it.PurchasePrice < 0:
			ve.add(key+".purchasePrice", "must not be negative")
		case it.Quantity < 1:
			ve.add(key+".quantity", "must be at least 1")
		case strings.TrimSpace(it.Name) == "":
			ve.add(key+".name", "required")
		}
	}
	return ve.orNil()
}

// ValidatePatch rejects empty patches and unknown statuses.
func ValidatePatch(p Patch) error {
	if p.Empty() {
		return ErrEmptyPatch
	}
	if p.Status != nil && !p.Status.Valid() {
		ve := &ValidationError{}
		ve.add("status", fmt.Sprintf("unknown status %q", *p.Status))
		return ve
	}
	return nil
}

// CheckTransition applies the regression policy to a status patch.
func CheckTransition(current Order, p Patch, strict bool) error {
	if !strict || p.Status == nil {
		return nil
	}
	if !CanTransition(current.Status, *p.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, current.Status, *p.Status)
	}
	return nil
}
