package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CheckOutcome is the per-check verdict recorded in a validation result.
type CheckOutcome string

const (
	CheckPassed  CheckOutcome = "passed"
	CheckWarning CheckOutcome = "warning"
	CheckFailed  CheckOutcome = "failed"
)

// ValidationResult is the structured record produced by the validation
// engine. Results are persisted on deployment and swap rows even on
// success; they are forensic artifacts, not exceptions.
type ValidationResult struct {
	Passed   bool                    `json:"passed"`
	Checks   map[string]CheckOutcome `json:"checks"`
	Errors   []string                `json:"errors"`
	Warnings []string                `json:"warnings"`
}

// NewValidationResult returns an empty, passing result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Passed:   true,
		Checks:   make(map[string]CheckOutcome),
		Errors:   []string{},
		Warnings: []string{},
	}
}

// AddError records a failed check. The result stops passing.
func (r *ValidationResult) AddError(check, msg string) {
	r.Checks[check] = CheckFailed
	r.Errors = append(r.Errors, msg)
	r.Passed = false
}

// AddWarning records a check that passed with a warning.
func (r *ValidationResult) AddWarning(check, msg string) {
	r.Checks[check] = CheckWarning
	r.Warnings = append(r.Warnings, msg)
}

// AddPass records a passing check.
func (r *ValidationResult) AddPass(check string) {
	r.Checks[check] = CheckPassed
}

// Value implements driver.Valuer so results persist as JSONB.
func (r ValidationResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *ValidationResult) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// SwapValidation is the validation result for a swap compatibility check.
// Compatible is true only when the check passed with zero warnings.
type SwapValidation struct {
	ValidationResult
	Compatible          bool  `json:"compatible"`
	EstimatedDowntimeMS int64 `json:"estimated_downtime_ms"`
}

// Value implements driver.Valuer.
func (v SwapValidation) Value() (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements sql.Scanner.
func (v *SwapValidation) Scan(src interface{}) error {
	return scanJSON(src, v)
}

func scanJSON(src, dest interface{}) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dest)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}
