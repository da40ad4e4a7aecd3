package jobcontrol

import (
	"fmt"
	"iter"
	"slices"
	"sync"
)

// JobInfo is a point-in-time view of a Job and its position in a Table.
type JobInfo struct {
	Position int
	Pid      int
	Command  string
	State    JobState
}

// Table is an ordered registry of active Jobs. Insertion order defines a Job's
// 1-based position. Positions are not identities: removing a Job shifts every
// later Job down by one.
//
// Jobs are stored by ID and the order is kept as a slice of IDs, so iteration
// can work from a snapshot of IDs and skip any Job removed while iterating.
type Table struct {
	order []string
	jobs  map[string]*Job

	mu sync.RWMutex
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{jobs: make(map[string]*Job)}
}

// Add appends job at the highest position. Adding a Job that is already in
// the Table is a programming error.
func (t *Table) Add(job *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.jobs[job.id]; exists {
		panic(fmt.Sprintf("job %d (%s) added twice", job.pgid, job.command))
	}

	t.jobs[job.id] = job
	t.order = append(t.order, job.id)
}

// Remove deletes job from the Table. It returns false if job was not present.
func (t *Table) Remove(job *Job) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.jobs[job.id]; !exists {
		return false
	}

	delete(t.jobs, job.id)
	t.order = slices.DeleteFunc(t.order, func(id string) bool {
		return id == job.id
	})

	return true
}

// ByPosition returns the Job at the 1-based position or an
// IndexOutOfRangeError.
func (t *Table) ByPosition(position int) (*Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if position < 1 || position > len(t.order) {
		return nil, IndexOutOfRangeError{Position: position, Size: len(t.order)}
	}

	return t.jobs[t.order[position-1]], nil
}

// Latest returns the Job at the highest position or an IndexOutOfRangeError
// if the Table is empty.
func (t *Table) Latest() (*Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.order) == 0 {
		return nil, IndexOutOfRangeError{Position: 0, Size: 0}
	}

	return t.jobs[t.order[len(t.order)-1]], nil
}

// ByGroup returns the Job with the given process group id or ErrJobNotFound.
func (t *Table) ByGroup(pgid int) (*Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, id := range t.order {
		if job := t.jobs[id]; job.pgid == pgid {
			return job, nil
		}
	}

	return nil, ErrJobNotFound
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.order)
}

func (t *Table) IsEmpty() bool {
	return t.Len() == 0
}

// All returns an iterator over the Jobs in position order. Each traversal
// works from a snapshot of IDs taken when it starts, and Jobs removed before
// they are reached are skipped, so the Table may be mutated while iterating.
func (t *Table) All() iter.Seq[*Job] {
	return func(yield func(*Job) bool) {
		t.mu.RLock()
		ids := slices.Clone(t.order)
		t.mu.RUnlock()

		for _, id := range ids {
			t.mu.RLock()
			job, exists := t.jobs[id]
			t.mu.RUnlock()

			if !exists {
				continue
			}

			if !yield(job) {
				return
			}
		}
	}
}

// Snapshot returns a JobInfo for every Job, with positions computed from the
// current order.
func (t *Table) Snapshot() []JobInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	infos := make([]JobInfo, 0, len(t.order))

	for i, id := range t.order {
		job := t.jobs[id]

		infos = append(infos, JobInfo{
			Position: i + 1,
			Pid:      job.pgid,
			Command:  job.command,
			State:    job.State(),
		})
	}

	return infos
}
