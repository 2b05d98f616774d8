// Package rules provides the six pure induction scorers: certificate,
// work-order, branding, mileage, cleaning, and stabling. Each evaluator maps
// a trainset plus a context snapshot to a (score, tag, warnings) triple.
// Warnings appear verbatim in decision audits, so wording is part of the
// contract.
package rules

import (
	"time"

	"github.com/inductor-io/inductor/internal/fleet"
)

// Rule identifies one of the six scorers.
type Rule string

// Rules, in composite-weight order.
const (
	RuleCertificate Rule = "certificate"
	RuleWorkOrder   Rule = "workorder"
	RuleBranding    Rule = "branding"
	RuleMileage     Rule = "mileage"
	RuleCleaning    Rule = "cleaning"
	RuleStabling    Rule = "stabling"
)

// Tag classifies the severity of a rule outcome.
type Tag string

// Outcome tags.
const (
	TagOK       Tag = "OK"
	TagWarning  Tag = "WARNING"
	TagCritical Tag = "CRITICAL"
)

// DefaultCleaningCycle is the interval after which a trainset is due for
// cleaning.
const DefaultCleaningCycle = 7 * 24 * time.Hour

type (
	// Result is the outcome of a single rule for a single trainset.
	Result struct {
		Rule      Rule
		Score     float64
		Tag       Tag
		CanInduct bool
		Warnings  []string
	}

	// Set groups all six results for a trainset.
	Set struct {
		Certificate Result
		WorkOrder   Result
		Branding    Result
		Mileage     Result
		Cleaning    Result
		Stabling    Result
	}

	// Params carries the evaluation inputs shared by all rules.
	Params struct {
		Now           time.Time
		CleaningCycle time.Duration
	}
)

// All returns the six results in composite-weight order.
func (s *Set) All() []Result {
	return []Result{s.Certificate, s.WorkOrder, s.Branding, s.Mileage, s.Cleaning, s.Stabling}
}

// HasCritical reports whether any rule hit a CRITICAL tag.
func (s *Set) HasCritical() bool {
	for _, r := range s.All() {
		if r.Tag == TagCritical {
			return true
		}
	}

	return false
}

// Eligible reports the hard induction constraint: certificate and
// work-order rules must both permit induction.
func (s *Set) Eligible() bool {
	return s.Certificate.CanInduct && s.WorkOrder.CanInduct
}

// Evaluate runs all six rules against one trainset.
func Evaluate(ts *fleet.Trainset, ctx *fleet.Context, params Params) Set {
	cycle := params.CleaningCycle
	if cycle <= 0 {
		cycle = DefaultCleaningCycle
	}

	return Set{
		Certificate: EvaluateCertificate(ts, ctx, params.Now),
		WorkOrder:   EvaluateWorkOrder(ts, ctx),
		Branding:    EvaluateBranding(ts, ctx, params.Now),
		Mileage:     EvaluateMileage(ts, ctx),
		Cleaning:    EvaluateCleaning(ts, params.Now, cycle),
		Stabling:    EvaluateStabling(ts),
	}
}
