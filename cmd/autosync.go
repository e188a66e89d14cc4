package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/caleb/fittrack/internal/config"
	"github.com/caleb/fittrack/internal/connectivity"
	"github.com/caleb/fittrack/internal/models"
	"github.com/caleb/fittrack/internal/output"
	"github.com/caleb/fittrack/internal/remote"
	"github.com/caleb/fittrack/internal/store"
	fitsync "github.com/caleb/fittrack/internal/sync"
)

// app bundles the open database and the sync engine built around it.
// The engine starts offline; commands that want to sync flip Net after a
// connectivity check so offline invocations never touch the network.
type app struct {
	DB     *store.DB
	Engine *fitsync.Engine
	Net    *connectivity.Manual
}

// openApp opens the local database and wires the sync engine to it.
func openApp() (*app, error) {
	db, err := store.Open(getDataDir())
	if err != nil {
		return nil, err
	}

	maps, err := fitsync.LoadMappings(db.IDMappings())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load id map: %w", err)
	}

	net := connectivity.NewManual(false)
	engine := fitsync.NewEngine(fitsync.Config{
		Queue:    fitsync.NewQueue(db.MutationQueue(), maps),
		Mappings: maps,
		Remote:   remote.NewClient(config.GetSyncURL(), config.GetAPIKey()),
		State:    db.SyncState(),
		Entities: db.EntitySource(),
		Provider: net,
		Owner:    config.GetAccount(),
	})

	return &app{DB: db, Engine: engine, Net: net}, nil
}

func (a *app) Close() {
	a.DB.Close()
}

// autoSyncEligible returns whether a mutating command should attempt a sync.
func autoSyncEligible() bool {
	return config.GetAutoSyncEnabled() && config.IsAuthenticated()
}

// probeOnline runs one synchronous connectivity check.
func probeOnline() bool {
	probe := connectivity.NewProbe(config.GetProbeURL(), config.GetProbeInterval())
	return probe.Check()
}

// recordAndSync enqueues a mutation and drains the queue when the remote is
// reachable. A failed or skipped sync never fails the local command; the
// change stays queued for the next attempt.
func recordAndSync(ctx context.Context, a *app, m models.Mutation) error {
	if autoSyncEligible() {
		a.Net.SetOnline(probeOnline())
	}

	rep, err := a.Engine.Record(ctx, m)
	if err != nil {
		return err
	}
	reportSyncOutcome(rep)
	return nil
}

// reportSyncOutcome surfaces problems from a post-mutation drain. Quiet on
// the happy path: applied changes and offline queueing need no commentary.
func reportSyncOutcome(rep *fitsync.Report) {
	if rep == nil || rep.Empty() {
		return
	}
	if rep.AuthRequired {
		output.Warning("sync: authentication required (run: fittrack auth login)")
		return
	}
	if len(rep.Failures) > 0 || rep.Retrying > 0 {
		output.Warning("sync: %s", rep.Summary())
		return
	}
	slog.Debug("sync: after mutation", "summary", rep.Summary())
}
