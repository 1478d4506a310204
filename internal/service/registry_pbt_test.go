package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cert-registry/internal/types"
)

// Drives random submit/approve/reject/issue sequences against a fresh
// fixture and checks the bookkeeping that must hold no matter the order:
// units are conserved across the ledger, the aggregated stats match the
// stored certificates, and resolved requests stay resolved.
func TestRegistryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	type step struct {
		op     int
		serial int
	}

	genStep := gopter.CombineGens(
		gen.IntRange(0, 3),
		gen.IntRange(0, 5),
	).Map(func(vals []interface{}) step {
		return step{op: vals[0].(int), serial: vals[1].(int)}
	})

	run := func(steps []step) (*testFixture, error) {
		f := newTestFixture()
		ctx := context.Background()
		if err := f.bootstrap(ctx); err != nil {
			return nil, err
		}
		f.ledgerRepo.balances[testOwner] = 1_000_000_000_000
		f.ledgerRepo.balances[testCertifier] = 1_000_000_000_000

		for _, s := range steps {
			serial := fmt.Sprintf("SN-%04d", s.serial)
			switch s.op {
			case 0:
				f.requests.Submit(ctx, submitInput(serial))
			case 1:
				f.requests.Approve(ctx, testCertifier, serial)
			case 2:
				f.requests.Reject(ctx, testCertifier, serial, "failed inspection")
			case 3:
				f.certificates.Issue(ctx, issueInput(serial))
			}
			// Outrun cooldowns so the generator exercises the
			// workflow gates rather than the timing gates.
			f.advance(6 * time.Minute)
		}
		return f, nil
	}

	properties.Property("ledger units are conserved", prop.ForAll(
		func(steps []step) bool {
			f, err := run(steps)
			if err != nil {
				return false
			}
			before := uint64(3 * 10_000_000_000)
			// bootstrap funds three identities, run tops up two.
			before += 2 * (1_000_000_000_000 - 10_000_000_000)
			return f.ledgerRepo.total() == before
		},
		gen.SliceOf(genStep),
	))

	properties.Property("aggregated stats match stored certificates", prop.ForAll(
		func(steps []step) bool {
			f, err := run(steps)
			if err != nil {
				return false
			}
			stats, err := f.authority.GetStatistics(context.Background())
			if err != nil {
				return false
			}
			return stats.TotalCertificates == uint64(len(f.certRepo.certs))
		},
		gen.SliceOf(genStep),
	))

	properties.Property("requests never leave a terminal state backwards", prop.ForAll(
		func(steps []step) bool {
			f, err := run(steps)
			if err != nil {
				return false
			}
			ctx := context.Background()
			for _, request := range f.requestRepo.requests {
				if request.Status.Terminal() && request.ResolvedAt == nil {
					return false
				}
				if request.Status == types.StatusApproved {
					exists, err := f.certRepo.Exists(ctx, request.SerialNumber)
					if err != nil || !exists {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(genStep),
	))

	properties.TestingRun(t)
}
