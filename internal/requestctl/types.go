// Package requestctl implements the bounded work-queue and deadline
// tracker that coordinates in-flight requests between mobile applications
// and the HMI: RequestInfoSet (dual-indexed tracked-request set) and
// RequestController (worker pool + rate limiter + deadline timer), per
// spec.md §4.1/§4.2.
package requestctl

import (
	"time"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
)

// RequestType distinguishes a request initiated by a mobile application
// from one the core itself issued to the HMI.
type RequestType int

const (
	MobileRequest RequestType = iota
	HMIRequest
)

func (t RequestType) String() string {
	if t == HMIRequest {
		return "HMIRequest"
	}
	return "MobileRequest"
}

// infoHash packs (app_id, correlation_id) the way spec.md §3 defines:
// hash = (app_id << 32) | correlation_id.
type infoHash uint64

func makeHash(appID appmodel.ConnectionKey, correlationID uint32) infoHash {
	return infoHash(uint64(appID)<<32 | uint64(correlationID))
}

// RequestInfo wraps one tracked request with its deadline bookkeeping.
// TimeoutSec == 0 means "not tracked for expiry" — the entry still
// participates in point lookups but the deadline timer always skips it.
type RequestInfo struct {
	Request       collab.Command
	StartTime     time.Time
	TimeoutSec    uint64
	EndTime       time.Time
	AppID         appmodel.ConnectionKey // 0 for HMI-originated
	CorrelationID uint32
	Type          RequestType

	// heapIndex is maintained by the deadline heap; callers never touch it.
	heapIndex int
}

func newRequestInfo(req collab.Command, reqType RequestType, appID appmodel.ConnectionKey, correlationID uint32, timeoutSec uint64, now time.Time) *RequestInfo {
	ri := &RequestInfo{
		Request:       req,
		StartTime:     now,
		TimeoutSec:    timeoutSec,
		AppID:         appID,
		CorrelationID: correlationID,
		Type:          reqType,
	}
	ri.updateEndTime()
	return ri
}

func (r *RequestInfo) updateEndTime() {
	r.EndTime = r.StartTime.Add(time.Duration(r.TimeoutSec) * time.Second)
}

// UpdateTimeout changes the tracked timeout and recomputes EndTime from
// the original StartTime, matching the source's updateTimeOut behavior.
func (r *RequestInfo) UpdateTimeout(timeoutSec uint64) {
	r.TimeoutSec = timeoutSec
	r.updateEndTime()
}

// IsExpired reports whether the request's deadline has passed as of now.
// A TimeoutSec of 0 never expires.
func (r *RequestInfo) IsExpired(now time.Time) bool {
	if r.TimeoutSec == 0 {
		return false
	}
	return !now.Before(r.EndTime)
}

func (r *RequestInfo) hash() infoHash {
	return makeHash(r.AppID, r.CorrelationID)
}
