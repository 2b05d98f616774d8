package rules

import (
	"fmt"
	"time"

	"github.com/inductor-io/inductor/internal/fleet"
)

// Certificate score bands by days to expiry.
const (
	certComfortDays = 30
	certNoticeDays  = 14
	certUrgentDays  = 7
)

// EvaluateCertificate scores fitness-certificate validity. A trainset with
// no valid certificate, or one already expired, cannot be inducted.
//
// Bands: >30 days to expiry = 100, 15-30 = 80, 8-14 = 60, 1-7 = 30,
// expired or absent = 0.
func EvaluateCertificate(ts *fleet.Trainset, ctx *fleet.Context, now time.Time) Result {
	result := Result{Rule: RuleCertificate, Tag: TagOK}

	cert := ctx.CertificateFor(ts.ID)
	if cert == nil {
		result.Score = 0
		result.Tag = TagCritical
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Trainset %s has no fitness certificate on record", ts.Number))

		return result
	}

	if !cert.IsValidAt(now) {
		result.Score = 0
		result.Tag = TagCritical
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Fitness certificate for trainset %s is not valid (status %s)", ts.Number, cert.Status))

		return result
	}

	days := cert.DaysToExpiry(now)

	switch {
	case days > certComfortDays:
		result.Score = 100
	case days >= certNoticeDays+1:
		result.Score = 80
	case days >= certUrgentDays+1:
		result.Score = 60
	default:
		result.Score = 30
	}

	if days <= certNoticeDays {
		result.Tag = TagWarning
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Fitness certificate for trainset %s expires in %d days", ts.Number, days))
	}

	result.CanInduct = result.Score > 0

	return result
}
