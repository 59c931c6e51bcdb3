package storage

import (
	"errors"
	"fmt"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/job"
)

// ValidateSaveBatch enforces the all-new-or-all-existing rule for batch
// saves. Returns whether the batch is all-new, or hoist.ErrInvalidArgument
// for a mixed batch.
func ValidateSaveBatch(jobs []*job.Job) (allNew bool, err error) {
	if len(jobs) == 0 {
		return false, nil
	}
	allNew = jobs[0].IsNew()
	for _, j := range jobs[1:] {
		if j.IsNew() != allNew {
			return false, fmt.Errorf("%w: batch mixes new and existing jobs", hoist.ErrInvalidArgument)
		}
	}
	return allNew, nil
}

// CollectConcurrentModifications applies save to each job independently.
// Version conflicts are collected rather than fast-failed so callers receive
// the complete conflict set; any other error aborts immediately. Returns a
// ConcurrentJobModificationError carrying every conflicting job, or nil.
func CollectConcurrentModifications(jobs []*job.Job, save func(*job.Job) error) error {
	var conflicted []*job.Job
	for _, j := range jobs {
		err := save(j)
		if err == nil {
			continue
		}
		var cjm *ConcurrentJobModificationError
		if errors.As(err, &cjm) {
			conflicted = append(conflicted, cjm.Jobs...)
			continue
		}
		return err
	}
	if len(conflicted) > 0 {
		return &ConcurrentJobModificationError{Jobs: conflicted}
	}
	return nil
}
