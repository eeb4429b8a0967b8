package factory

import "fmt"

// MissingFieldError reports a configuration field required to build a
// particular port adapter that was left empty. Unlike the teacher's
// providers.go, which degrades silently to an in-memory/deterministic
// implementation, factories in this package fail closed: callers that want
// the degraded behavior ask for it explicitly (e.g. vectorStore.backend:
// "memory" vs a test harness wiring a fake directly).
type MissingFieldError struct {
	Component string
	Field     string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: missing required configuration field %q", e.Component, e.Field)
}

func missingField(component, field string) error {
	return &MissingFieldError{Component: component, Field: field}
}
