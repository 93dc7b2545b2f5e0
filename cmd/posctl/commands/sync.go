package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrjohn/arcana-pos-go/internal/apiclient"
	"github.com/jrjohn/arcana-pos-go/internal/cli/output"
	"github.com/jrjohn/arcana-pos-go/internal/network"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/offline/syncer"
	"github.com/jrjohn/arcana-pos-go/internal/session"
	"github.com/jrjohn/arcana-pos-go/internal/storage"
)

// syncReport renders a drain result
type syncReport offline.SyncResult

func (r syncReport) Headers() []string {
	return []string{"Attempted", "Succeeded", "Failed", "Dropped", "Remaining", "Interrupted"}
}

func (r syncReport) Rows() [][]string {
	return [][]string{{
		strconv.Itoa(r.Attempted),
		strconv.Itoa(r.Succeeded),
		strconv.Itoa(r.Failed),
		strconv.Itoa(r.Dropped),
		strconv.Itoa(r.Remaining),
		strconv.FormatBool(r.Interrupted),
	}}
}

func newSyncCmd(flags *globalFlags) *cobra.Command {
	var (
		force bool
		halt  bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued requests now",
		Long: `Replays every pending request once, oldest first.

Connectivity is checked with the configured source first; --force skips the
check and attempts the replay regardless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := flags.format()
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer e.Close()

			var source network.Source
			if force {
				source = network.NewStaticSource(network.State{
					Connected:         true,
					InternetReachable: network.Reachable(true),
					Type:              network.TypeUnknown,
					CheckedAt:         time.Now(),
				})
			} else if source, err = network.NewSource(&e.cfg.Network, e.logger); err != nil {
				return err
			}
			monitor := network.NewMonitor(source, e.logger)
			_, _ = monitor.Refresh(cmd.Context())

			sessions := session.NewManager(cmd.Context(), e.store, nil, nil, e.logger)
			client := apiclient.New(e.cfg.API.BaseURL, e.cfg.API.Timeout, e.logger,
				apiclient.WithTokenSource(sessions),
				apiclient.WithConnectivity(monitor),
			)

			if !cmd.Flags().Changed("halt-on-failure") {
				halt = e.cfg.Sync.HaltOnFailure
			}
			engine := syncer.NewEngine(e.queue, client, monitor, e.logger,
				syncer.WithHaltOnFailure(halt),
				syncer.WithDrainLock(storage.NewLocker(e.store)),
			)
			e.service.SetSyncer(engine)

			result, err := e.service.SyncNow(cmd.Context())
			if errors.Is(err, syncer.ErrOffline) {
				return fmt.Errorf("%w: %d requests remain queued, use --force to try anyway", err, result.Remaining)
			}
			if errors.Is(err, syncer.ErrSyncInProgress) {
				return fmt.Errorf("%w: the agent is draining the shared queue", err)
			}
			if err != nil {
				return err
			}
			return output.Print(cmd.OutOrStdout(), format, syncReport(result))
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip the connectivity check")
	cmd.Flags().BoolVar(&halt, "halt-on-failure", false, "stop at the first failed replay (default from sync.halt_on_failure)")
	return cmd
}
