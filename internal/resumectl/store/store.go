// Package store defines the resumption persistence boundary (spec.md
// §3/§7) and its two backends: an atomic-rename JSON dictionary file
// (store/jsonfile) for single-binary deployments, and a Postgres-backed
// store (store/postgres) for deployments that already run a database.
// ApplicationManager depends only on the Storage interface; main wires
// in whichever backend config.UseDBForResumption selects.
package store

import (
	"context"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
)

// Storage persists per-application resumption records and module-wide
// metadata. Every method must be safe for concurrent use: the
// resumption controller's debounced save timer and an on-demand restore
// can run at the same time.
type Storage interface {
	SaveApplication(ctx context.Context, rec appmodel.Record) error
	LoadApplication(ctx context.Context, deviceMAC, policyAppID string) (appmodel.Record, bool, error)
	DeleteApplication(ctx context.Context, deviceMAC, policyAppID string) error
	LoadAll(ctx context.Context) ([]appmodel.Record, error)

	SaveMeta(ctx context.Context, meta appmodel.Meta) error
	LoadMeta(ctx context.Context) (appmodel.Meta, error)

	Close() error
}
