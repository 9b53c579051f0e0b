package requestctl

import (
	"container/heap"
	"sync"
	"time"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
)

// deadlineHeap orders *RequestInfo by EndTime, breaking ties by hash so
// iteration order is stable. It implements container/heap.Interface.
type deadlineHeap []*RequestInfo

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	if h[i].EndTime.Equal(h[j].EndTime) {
		return h[i].hash() < h[j].hash()
	}
	return h[i].EndTime.Before(h[j].EndTime)
}
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *deadlineHeap) Push(x any) {
	ri := x.(*RequestInfo)
	ri.heapIndex = len(*h)
	*h = append(*h, ri)
}
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	ri := old[n-1]
	old[n-1] = nil
	ri.heapIndex = -1
	*h = old[:n-1]
	return ri
}

// InfoSet is the dual-indexed tracked-request set described in
// spec.md §4.1: a deadline-ordered heap for "next to expire" plus a
// hash-keyed map for O(1) point lookup by (app_id, correlation_id).
// Every mutator updates both indexes under the same lock so they can
// never drift apart — CheckInvariant exists to assert that in tests.
type InfoSet struct {
	mu       sync.Mutex
	deadline deadlineHeap
	byHash   map[infoHash]*RequestInfo
}

// NewInfoSet creates an empty tracked-request set.
func NewInfoSet() *InfoSet {
	return &InfoSet{byHash: map[infoHash]*RequestInfo{}}
}

// Add inserts a request into both indexes. A duplicate (same app_id +
// correlation_id already tracked) is rejected silently, matching
// spec.md §4.1's "duplicate insert is rejected silently (logged)" — the
// caller is expected to log if it wants visibility; InfoSet itself has
// no logger to keep it a pure data structure.
func (s *InfoSet) Add(ri *RequestInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := ri.hash()
	if _, exists := s.byHash[h]; exists {
		return false
	}
	s.byHash[h] = ri
	heap.Push(&s.deadline, ri)
	return true
}

// Erase removes the entry identified by (appID, correlationID). Returns
// false if no such entry was tracked.
func (s *InfoSet) Erase(appID appmodel.ConnectionKey, correlationID uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eraseLocked(makeHash(appID, correlationID))
}

func (s *InfoSet) eraseLocked(h infoHash) bool {
	ri, ok := s.byHash[h]
	if !ok {
		return false
	}
	delete(s.byHash, h)
	if ri.heapIndex >= 0 && ri.heapIndex < len(s.deadline) {
		heap.Remove(&s.deadline, ri.heapIndex)
	}
	return true
}

// Find performs the point lookup by (connection_key, correlation_id).
func (s *InfoSet) Find(appID appmodel.ConnectionKey, correlationID uint32) (*RequestInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ri, ok := s.byHash[makeHash(appID, correlationID)]
	return ri, ok
}

// Front returns the request with the nearest deadline, or nil if empty.
func (s *InfoSet) Front() *RequestInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deadline) == 0 {
		return nil
	}
	return s.deadline[0]
}

// FrontWithTimeout returns the nearest-deadline entry that actually has a
// nonzero timeout (i.e. participates in expiry), skipping untracked
// (timeout==0) entries which sort arbitrarily among themselves.
func (s *InfoSet) FrontWithTimeout() *RequestInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ri := range s.deadline {
		if ri.TimeoutSec != 0 {
			return ri
		}
	}
	return nil
}

// PopExpired removes and returns every entry whose deadline has passed
// as of now, skipping (and leaving tracked) entries with TimeoutSec==0.
// It repeatedly re-reads the heap root so that a caller's side effects
// (onTimeOut synthesizing further state changes) never invalidate the
// scan, per spec.md §4.2's "iterator is reset to begin()" policy.
func (s *InfoSet) PopExpired(now time.Time) []*RequestInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*RequestInfo
	// Entries with TimeoutSec==0 can be anywhere (EndTime==StartTime);
	// walk a scratch copy to decide what to remove without the heap's
	// ordering being disturbed by untracked entries.
	var toErase []infoHash
	for _, ri := range s.deadline {
		if ri.TimeoutSec == 0 {
			continue
		}
		if !now.Before(ri.EndTime) {
			expired = append(expired, ri)
			toErase = append(toErase, ri.hash())
		}
	}
	for _, h := range toErase {
		s.eraseLocked(h)
	}
	return expired
}

// RemoveByConnectionKey erases every entry belonging to the given
// connection key (mobile app teardown) and returns the count removed.
func (s *InfoSet) RemoveByConnectionKey(appID appmodel.ConnectionKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var toErase []infoHash
	for h, ri := range s.byHash {
		if ri.AppID == appID {
			toErase = append(toErase, h)
		}
	}
	for _, h := range toErase {
		s.eraseLocked(h)
	}
	return len(toErase)
}

// RemoveAllOfType erases every tracked entry of the given type (used for
// OnWakeUp's bulk terminate) and returns the count removed.
func (s *InfoSet) RemoveAllOfType(t RequestType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var toErase []infoHash
	for h, ri := range s.byHash {
		if ri.Type == t {
			toErase = append(toErase, h)
		}
	}
	for _, h := range toErase {
		s.eraseLocked(h)
	}
	return len(toErase)
}

// Size returns the number of tracked entries.
func (s *InfoSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}

// CountInWindow counts requests by appID started within [start, end],
// used by the rate-limit gate (spec.md §4.2). Every tracked request of
// the app in the window counts; requests are not filtered by hmi_level.
func (s *InfoSet) CountInWindow(appID appmodel.ConnectionKey, start, end time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ri := range s.byHash {
		if ri.AppID != appID {
			continue
		}
		if ri.StartTime.Before(start) || ri.StartTime.After(end) {
			continue
		}
		count++
	}
	return count
}

// CheckInvariant asserts the two indexes have equal cardinality — a
// violation is the Fatal error class from spec.md §7. It is meant to be
// called from tests and debug builds, not production hot paths.
func (s *InfoSet) CheckInvariant() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash) == len(s.deadline)
}
