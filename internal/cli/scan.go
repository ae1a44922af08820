package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

// NewScanCmd создаёт команду отправки запроса.
//
//	gather scan --data '{"repo":"gather"}'
//	gather scan request.json
//	cat request.json | gather scan -
func NewScanCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var data string
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "scan [FILE|-]",
		Short: "Submit a payload to all workers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload, err := readPayload(cmd, data, args)
			if err != nil {
				return err
			}

			res, err := client.Scan(cmd.Context(), payload, idempotencyKey)
			if err != nil {
				return err
			}

			workers := make([]string, 0, len(res.MessageIDs))
			for name := range res.MessageIDs {
				workers = append(workers, name)
			}
			sort.Strings(workers)

			rows := make([][]string, len(workers))
			for i, name := range workers {
				rows[i] = []string{name, res.MessageIDs[name]}
			}

			out.Line("Request: %s", res.RequestID)
			out.Print([]string{"WORKER", "MESSAGE_ID"}, rows, res)
			if res.Replayed {
				out.Success("Replayed stored response for idempotency key " + idempotencyKey)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Payload JSON")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency-Key header value")

	return cmd
}

// readPayload берёт payload из --data, файла или stdin ("-").
func readPayload(cmd *cobra.Command, data string, args []string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case data != "" && len(args) > 0:
		return nil, errors.New("use either --data or a file argument, not both")
	case data != "":
		raw = []byte(data)
	case len(args) == 1 && args[0] == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	case len(args) == 1:
		b, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		raw = b
	default:
		return nil, errors.New("payload is required: pass --data, a file or - for stdin")
	}

	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid JSON")
	}
	return raw, nil
}
