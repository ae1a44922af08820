package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewFindingsCmd создаёт команду просмотра результатов.
func NewFindingsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts FindingsOpts

	cmd := &cobra.Command{
		Use:   "findings REQUEST_ID",
		Short: "Show merged findings of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.Findings(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}

			if res.Pending {
				if out.IsJSON() {
					out.JSON(res)
				} else {
					out.Line("Request %s is %s, findings are not ready yet", res.RequestID, res.FinalStatus)
				}
				return nil
			}

			rows := make([][]string, len(res.Items))
			first := (res.Page - 1) * res.Size
			for i, item := range res.Items {
				rows[i] = []string{strconv.Itoa(first + i + 1), truncate(string(item), 100)}
			}

			out.Line("Request: %s (%s)", res.RequestID, res.MergedKey)
			out.Line("Page %d, size %d, total %d", res.Page, res.Size, res.Total)
			out.Print([]string{"#", "ITEM"}, rows, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "Merged document key override")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "Page number (default 1)")
	cmd.Flags().IntVar(&opts.Size, "size", 0, "Page size (default 50, max 200)")

	return cmd
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
