package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caleb/fittrack/internal/config"
	"github.com/caleb/fittrack/internal/connectivity"
	"github.com/caleb/fittrack/internal/output"
	"github.com/caleb/fittrack/internal/remote"
	fitsync "github.com/caleb/fittrack/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Sync local changes with the remote server",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		pushOnly, _ := cmd.Flags().GetBool("push")
		pullOnly, _ := cmd.Flags().GetBool("pull")
		watch, _ := cmd.Flags().GetBool("watch")

		if !config.IsAuthenticated() {
			output.Error("not logged in (run: fittrack auth login)")
			return fmt.Errorf("not authenticated")
		}

		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if watch {
			return runWatch(cmd.Context(), a)
		}
		return runSyncOnce(cmd.Context(), a, pushOnly, pullOnly)
	},
}

func runSyncOnce(ctx context.Context, a *app, pushOnly, pullOnly bool) error {
	online := probeOnline()
	a.Net.SetOnline(online)
	if !online {
		status, err := a.Engine.Status()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Warning("offline: %d changes queued", status.Pending)
		return nil
	}

	if !pullOnly {
		rep, err := a.Engine.ProcessQueue(ctx)
		if err != nil {
			output.Error("sync: %v", err)
			return err
		}
		if rep.AuthRequired {
			output.Error("server rejected credentials (run: fittrack auth login)")
			return fmt.Errorf("not authenticated")
		}
		fmt.Println(rep.Summary())
		if len(rep.Failures) > 0 {
			for _, f := range rep.Failures {
				output.Warning("%s %s %s: %s (%v)",
					f.Mutation.Action, f.Mutation.Kind, output.ShortID(f.Mutation.LocalID), f.Reason, f.Err)
			}
		}
	}

	if !pushOnly {
		if err := runPull(ctx, a, pullOnly); err != nil {
			return err
		}
	}

	return nil
}

func runPull(ctx context.Context, a *app, pullOnly bool) error {
	if pullOnly {
		// Pull leaves the queue alone, so warn when local changes are
		// about to be shadowed until their next push
		status, err := a.Engine.Status()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if status.Pending > 0 {
			output.Warning("%d local changes still queued; they re-sync on the next push", status.Pending)
		}
	}

	snap, err := a.Engine.Pull(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrAuthRequired) {
			output.Error("server rejected credentials (run: fittrack auth login)")
		} else {
			output.Error("pull: %v", err)
		}
		return err
	}
	if err := a.DB.ReplaceEntities(snap.Profiles, snap.Workouts); err != nil {
		output.Error("install pulled entities: %v", err)
		return err
	}

	fmt.Printf("pulled %d profiles, %d workouts\n", len(snap.Profiles), len(snap.Workouts))
	return nil
}

// runWatch keeps a connectivity probe running and drains the queue whenever
// the connection comes back or the retry ticker fires. Blocks until
// interrupted.
func runWatch(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := config.GetProbeInterval()
	probe := connectivity.NewProbe(config.GetProbeURL(), interval)

	// Probe state feeds the engine's provider so queued mutations drain
	// as soon as the connection returns
	unsubscribe := probe.Subscribe(func(online bool) {
		a.Net.SetOnline(online)
	})
	defer unsubscribe()
	cancelRestore := connectivity.OnRestore(a.Net, func() {
		slog.Info("watch: connection restored")
		a.Engine.TriggerSync()
	})
	defer cancelRestore()

	probe.Start()
	defer probe.Stop()

	fmt.Printf("watching for changes (probe every %s, ^C to stop)\n", interval)

	// Retry ticker picks up records waiting out transient failures
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nstopped")
			return nil
		case <-ticker.C:
			if !a.Net.IsOnline() {
				continue
			}
			rep, err := a.Engine.ProcessQueue(ctx)
			if err != nil {
				if !errors.Is(err, fitsync.ErrSyncInFlight) && ctx.Err() == nil {
					slog.Warn("watch: sync pass", "err", err)
				}
				continue
			}
			if !rep.Empty() {
				fmt.Println(rep.Summary())
			}
		}
	}
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show pending changes and sync state",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		status, err := a.Engine.Status()
		if err != nil {
			output.Error("%v", err)
			return err
		}

		online := false
		if config.IsAuthenticated() {
			online = probeOnline()
		}

		jsonOut, _ := cmd.Flags().GetBool("json")
		if jsonOut {
			return output.JSON(map[string]any{
				"pending":       status.Pending,
				"lastSyncAt":    status.LastSyncAt,
				"online":        online,
				"authenticated": config.IsAuthenticated(),
				"account":       config.GetAccount(),
				"server":        config.GetSyncURL(),
			})
		}

		fmt.Printf("Pending: %d changes\n", status.Pending)
		fmt.Printf("Server:  %s (%s)\n", config.GetSyncURL(), output.FormatOnline(online))
		fmt.Printf("Sync:    %s\n", output.FormatLastSync(status.LastSyncAt))
		if !config.IsAuthenticated() {
			fmt.Println("Auth:    not logged in")
		}

		if status.Pending > 0 {
			pending, err := a.Engine.Queue().Pending()
			if err != nil {
				output.Error("%v", err)
				return err
			}
			fmt.Print(output.SectionHeader("pending changes"))
			for _, m := range pending {
				line := fmt.Sprintf("  %s %s %s", m.Action, m.Kind, output.ShortID(m.LocalID))
				if m.RetryCount > 0 {
					line += fmt.Sprintf(" (retry %d)", m.RetryCount)
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("push", false, "push queued changes only")
	syncCmd.Flags().Bool("pull", false, "pull remote state only")
	syncCmd.Flags().Bool("watch", false, "keep running and sync when the connection returns")
	statusCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
