package commands

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrjohn/arcana-pos-go/internal/cli/output"
	"github.com/jrjohn/arcana-pos-go/internal/network"
)

// statusReport summarises the queue and connectivity
type statusReport struct {
	Pending    int        `json:"pending"`
	Failed     int        `json:"failed"`
	Oldest     *time.Time `json:"oldest,omitempty"`
	Online     bool       `json:"online"`
	Connection string     `json:"connection"`
	Storage    string     `json:"storage"`
	API        string     `json:"api"`
}

func (r statusReport) Headers() []string {
	return []string{"Pending", "Failed", "Oldest", "Online", "Connection", "Storage", "API"}
}

func (r statusReport) Rows() [][]string {
	oldest := "-"
	if r.Oldest != nil {
		oldest = time.Since(*r.Oldest).Truncate(time.Second).String() + " ago"
	}
	return [][]string{{
		strconv.Itoa(r.Pending),
		strconv.Itoa(r.Failed),
		oldest,
		strconv.FormatBool(r.Online),
		r.Connection,
		r.Storage,
		r.API,
	}}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var skipNetwork bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue size and connectivity",
		Args:  cobra.NoArgs,
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

			report := statusReport{
				Pending:    e.service.GetQueueSize(),
				Failed:     len(e.service.FailedRequests()),
				Connection: "unchecked",
				Storage:    string(e.cfg.Storage.Driver),
				API:        e.cfg.API.BaseURL,
			}
			if next, ok := e.queue.GetNext(); ok {
				at := next.EnqueuedAt()
				report.Oldest = &at
			}

			if !skipNetwork {
				source, err := network.NewSource(&e.cfg.Network, e.logger)
				if err != nil {
					return err
				}
				state, _ := network.NewMonitor(source, e.logger).Refresh(cmd.Context())
				report.Online = state.IsOnline()
				report.Connection = state.Type
			}

			return output.Print(cmd.OutOrStdout(), format, report)
		},
	}
	cmd.Flags().BoolVar(&skipNetwork, "skip-network", false, "do not check connectivity")
	return cmd
}
