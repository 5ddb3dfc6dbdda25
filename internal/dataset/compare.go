package dataset

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// CohortOverlap is the result of comparing the subject populations of two
// study roots (typically baseline vs follow-up).
type CohortOverlap struct {
	Both         IDSet
	OnlyBaseline IDSet
	OnlyFollowup IDSet
}

// Compare computes the overlap between two cohorts of subject IDs.
func Compare(baseline, followup IDSet) CohortOverlap {
	return CohortOverlap{
		Both:         baseline.Intersect(followup),
		OnlyBaseline: baseline.Diff(followup),
		OnlyFollowup: followup.Diff(baseline),
	}
}

// CompareRoots scans both roots and compares their subject populations.
// The two scans are independent reads, so they run concurrently; the first
// failure cancels the other scan.
func CompareRoots(ctx context.Context, baselineRoot, followupRoot string) (CohortOverlap, error) {
	var baseline, followup IDSet

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		baseline, err = scanIDs(baselineRoot)
		return err
	})
	g.Go(func() error {
		var err error
		followup, err = scanIDs(followupRoot)
		return err
	})
	if err := g.Wait(); err != nil {
		return CohortOverlap{}, err
	}

	return Compare(baseline, followup), nil
}

func scanIDs(root string) (IDSet, error) {
	subjects, err := Subjects(root)
	if err != nil {
		return nil, err
	}
	s := make(IDSet, len(subjects))
	for _, subj := range subjects {
		s[subj.ID] = struct{}{}
	}
	return s, nil
}
