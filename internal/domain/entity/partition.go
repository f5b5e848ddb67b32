package entity

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/atomic"
)

// IdRangePartition is one page of eligible loan ids. SequenceNumber is 1-based.
// A zero Count marks the sentinel returned when nothing is eligible.
type IdRangePartition struct {
	MinID          int64 `gorm:"column:min_id"`
	MaxID          int64 `gorm:"column:max_id"`
	SequenceNumber int64 `gorm:"column:sequence_number"`
	Count          int64 `gorm:"column:cnt"`
}

func (p IdRangePartition) String() string {
	return fmt.Sprintf("#%d[%d..%d] count=%d", p.SequenceNumber, p.MinID, p.MaxID, p.Count)
}

// BusinessStepNameAndOrder names a business step and its pipeline position.
type BusinessStepNameAndOrder struct {
	Name  string `gorm:"column:step_name"`
	Order int64  `gorm:"column:step_order"`
}

// SortSteps orders steps by ascending Order, keeping the input order for ties.
func SortSteps(steps []BusinessStepNameAndOrder) []BusinessStepNameAndOrder {
	sorted := make([]BusinessStepNameAndOrder, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return sorted
}

// PartitionWorkUnit is what one partition worker processes.
type PartitionWorkUnit struct {
	Range         IdRangePartition
	BusinessSteps []BusinessStepNameAndOrder
	BusinessDate  time.Time
	CatchUp       bool
}

// IsEmpty reports whether the unit carries the zero-count sentinel range.
func (u PartitionWorkUnit) IsEmpty() bool {
	return u.Range.Count == 0
}

// ExcludedIDSet holds the account ids a partition must not process.
// It only grows. Readers never block: Add publishes a new copy with a CAS.
type ExcludedIDSet struct {
	ids atomic.Pointer[map[int64]struct{}]
}

// NewExcludedIDSet creates an empty set.
func NewExcludedIDSet() *ExcludedIDSet {
	s := &ExcludedIDSet{}
	empty := map[int64]struct{}{}
	s.ids.Store(&empty)
	return s
}

// Add inserts ids.
func (s *ExcludedIDSet) Add(ids ...int64) {
	if len(ids) == 0 {
		return
	}
	for {
		cur := s.ids.Load()
		next := make(map[int64]struct{}, len(*cur)+len(ids))
		for id := range *cur {
			next[id] = struct{}{}
		}
		for _, id := range ids {
			next[id] = struct{}{}
		}
		if s.ids.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// Contains reports whether id is excluded.
func (s *ExcludedIDSet) Contains(id int64) bool {
	_, ok := (*s.ids.Load())[id]
	return ok
}

// Len returns the number of excluded ids.
func (s *ExcludedIDSet) Len() int {
	return len(*s.ids.Load())
}

// IDs returns the excluded ids in ascending order.
func (s *ExcludedIDSet) IDs() []int64 {
	cur := *s.ids.Load()
	ids := make([]int64, 0, len(cur))
	for id := range cur {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
