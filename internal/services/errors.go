package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrStorage       = errors.New("storage error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Severity describes how the orchestrator should react to a classified error.
type Severity int

const (
	// SeverityDegrade means count the failure, log it, and continue the tick
	// loop. This is the default for everything inside steady state.
	SeverityDegrade Severity = iota
	// SeverityFatal means the condition prevents the daemon from operating
	// and startup (or the current run) should abort with a diagnostic.
	SeverityFatal
)

// Classify maps a tagged error to the reaction the orchestrator applies.
// Only configuration errors escalate; external-tool, storage, and transient
// failures degrade per the always-available design.
func Classify(err error) Severity {
	if errors.Is(err, ErrConfiguration) {
		return SeverityFatal
	}
	return SeverityDegrade
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
