package social

import (
	"fmt"
)

// ProviderError captures normalized provider response details.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	scope := "provider"
	if e.Provider != "" && e.Operation != "" {
		scope = fmt.Sprintf("%s %s", e.Provider, e.Operation)
	} else if e.Provider != "" {
		scope = e.Provider
	}

	if e.Description != "" {
		return fmt.Sprintf("%s failed: %s", scope, e.Description)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s failed with status %d", scope, e.Status)
	}
	return fmt.Sprintf("%s failed", scope)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
