// Package service implements the installer's provisioning steps: host
// probing, schema and constraint installation, settings and admin
// provisioning, module materialization and config file generation.
package service

import (
	"fmt"
	"strings"
)

// Outcome is the result of one item in a best-effort batch
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeExists  Outcome = "exists"
	OutcomeIgnored Outcome = "ignored"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ItemResult records what happened to one batch item
type ItemResult struct {
	Name    string
	Outcome Outcome
	Err     error
}

// BatchResult lists per-item outcomes so callers can inspect partial failures
type BatchResult struct {
	Items []ItemResult
}

func (b *BatchResult) add(name string, outcome Outcome, err error) {
	b.Items = append(b.Items, ItemResult{Name: name, Outcome: outcome, Err: err})
}

// Count returns the number of items with the given outcome
func (b BatchResult) Count(outcome Outcome) int {
	n := 0
	for _, item := range b.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failed returns the failed items
func (b BatchResult) Failed() []ItemResult {
	var failed []ItemResult
	for _, item := range b.Items {
		if item.Outcome == OutcomeFailed {
			failed = append(failed, item)
		}
	}
	return failed
}

// OK reports whether no item failed
func (b BatchResult) OK() bool {
	return b.Count(OutcomeFailed) == 0
}

// Summary renders "applied=3 exists=8" style counts for logging
func (b BatchResult) Summary() string {
	var parts []string
	for _, o := range []Outcome{OutcomeApplied, OutcomeExists, OutcomeIgnored, OutcomeSkipped, OutcomeFailed} {
		if n := b.Count(o); n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", o, n))
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}
