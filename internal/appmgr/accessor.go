package appmgr

import (
	"sync"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
)

// DataAccessor pairs a reference to the live application set with the
// lock that must be held to read it, so the type system — not
// convention — prevents an unlocked read of appmodel.ApplicationSet.
// The zero value is not usable; obtain one only via Manager.Applications,
// which returns it read-locked together with the func that releases it.
type DataAccessor struct {
	mu   *sync.RWMutex
	apps appmodel.ApplicationSet
}

// GetData returns the underlying set. The caller must not retain it
// past the accessor's release, which happens when the caller invokes the
// release func that Manager.Applications returned alongside it.
func (a DataAccessor) GetData() appmodel.ApplicationSet { return a.apps }

// Apps returns every registered application as a slice snapshot,
// satisfying statectl.AppStore and resumectl.AppProvider without either
// package importing appmgr.
func (a DataAccessor) Apps() []*appmodel.Application {
	out := make([]*appmodel.Application, 0, len(a.apps))
	for _, app := range a.apps {
		out = append(out, app)
	}
	return out
}
