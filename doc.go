// Package cronsync maintains a durable, independently queryable read model
// of the cron schedules managed by an external scheduler engine.
//
// The scheduler engine owns schedule persistence, timer storage, and job
// execution. Cronsync subscribes to its lifecycle event stream (Added,
// Updated, Removed) and projects each event into an index of cron entries
// that can be searched, sorted, and paginated without touching the
// scheduler's own storage.
//
// # Quick Start
//
//	eng, err := engine.New(ctx, cronsync.ConfigFromEnv())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := eng.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
//	crons, err := eng.Service().Search(ctx, engine.SearchRequest{
//	    AssistantID: assistantID,
//	})
//
// # Architecture
//
// Each concern lives in its own package: trigger computes next-fire times
// from cron expressions, index defines the read-model store contract with
// postgres, sqlite, and in-memory backends, scheduler models the external
// collaborator boundary, syncer projects lifecycle events into the store,
// and engine wires everything together at startup.
//
// Projection is idempotent: all writes key on the schedule's id, so
// duplicate event delivery leaves the index unchanged. When no durable
// backend is configured or reachable, the engine degrades to the
// in-memory store rather than failing startup.
package cronsync
