package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCmd создаёт команду просмотра состояния запроса.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool
	var interval time.Duration
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status REQUEST_ID",
		Short: "Show request status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var st *StatusResponse
			var err error
			if wait {
				st, err = waitDone(cmd.Context(), client, args[0], interval, timeout)
			} else {
				st, err = client.Status(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			workers := make([]string, 0, len(st.Engine))
			for name := range st.Engine {
				workers = append(workers, name)
			}
			sort.Strings(workers)

			rows := make([][]string, len(workers))
			for i, name := range workers {
				rows[i] = []string{name, st.Engine[name]}
			}

			out.Line("Request: %s", st.RequestID)
			out.Line("Status:  %s", st.FinalStatus)
			if st.MergedKey != "" {
				out.Line("Merged:  %s", st.MergedKey)
			}
			out.Print([]string{"WORKER", "STATUS"}, rows, st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the request is DONE")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Polling interval for --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait")

	return cmd
}

// waitDone опрашивает статус, пока запрос не станет DONE.
func waitDone(ctx context.Context, client *Client, requestID string, interval, timeout time.Duration) (*StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		st, err := client.Status(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if st.FinalStatus == "DONE" {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("request %s is still %s: %w", requestID, st.FinalStatus, ctx.Err())
		case <-time.After(interval):
		}
	}
}
