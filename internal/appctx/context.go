// Package appctx carries the ambient dependencies every task and reconciler
// entry point needs, replacing the original implementation's global "current
// application" with an explicit struct passed down the call stack (spec §9
// design note).
package appctx

import (
	"github.com/rs/zerolog"

	"github.com/bcgov/sbc-pay-sub002/internal/config"
	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// TaskContext bundles everything a task or reconciler pipeline needs to run
// one pass: structured logging, configuration/feature flags, a clock it can
// fake in tests, the CFS client, the event bus, the object store, and the
// relational store.
type TaskContext struct {
	Log    zerolog.Logger
	Config *config.Config
	Clock  domain.Clock

	CFS         domain.CFSOperations
	Bus         domain.EventPublisher
	ObjectStore domain.ObjectStore
	Store       domain.Store
}

// Options is a shorthand for the feature flags carried on Config.
func (c *TaskContext) Options() domain.RecognizedOptions {
	return c.Config.Options
}

// New assembles a TaskContext from its constituent gateways. Constructors
// for each gateway live in their own packages (internal/repository/postgres,
// internal/cfsclient, internal/bus, internal/repository/storage); New simply
// wires the already-constructed instances together for the entry points in
// internal/task, internal/reconciler, and internal/orchestrator.
func New(log zerolog.Logger, cfg *config.Config, clock domain.Clock, cfs domain.CFSOperations, bus domain.EventPublisher, store domain.ObjectStore, db domain.Store) *TaskContext {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &TaskContext{
		Log:         log,
		Config:      cfg,
		Clock:       clock,
		CFS:         cfs,
		Bus:         bus,
		ObjectStore: store,
		Store:       db,
	}
}
