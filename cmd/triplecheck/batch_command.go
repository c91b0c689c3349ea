package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"triplecheck/internal/validation/models"
)

type batchEntry struct {
	DataType string `json:"dataType"`
	Level    string `json:"level"`
	Data     any    `json:"data"`
}

type batchFile struct {
	Submissions []batchEntry `json:"submissions"`
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "batch <file|->",
		Short: "Validate many submissions concurrently",
		Long: "Validate many submissions concurrently. The input is either a JSON array of\n" +
			"{\"dataType\", \"level\", \"data\"} objects or an object with a \"submissions\" array.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			subs, err := parseBatch(data)
			if err != nil {
				return err
			}

			svc, err := ctx.engine(cmd)
			if err != nil {
				return err
			}
			summary := svc.ValidateBatch(cmd.Context(), subs)

			if asJSON {
				return writeJSON(cmd, summary)
			}
			return printSummary(cmd, summary)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the batch summary with every report as JSON")
	return cmd
}

func parseBatch(data []byte) ([]models.Submission, error) {
	var entries []batchEntry
	if err := decodeJSON(data, &entries); err != nil {
		var wrapped batchFile
		if err2 := decodeJSON(data, &wrapped); err2 != nil {
			return nil, err
		}
		entries = wrapped.Submissions
	}

	subs := make([]models.Submission, 0, len(entries))
	for i, e := range entries {
		if e.DataType == "" {
			return nil, fmt.Errorf("submission %d: dataType is required", i)
		}
		if e.Data == nil {
			return nil, fmt.Errorf("submission %d: data is required", i)
		}
		level, err := models.ParseLevel(e.Level)
		if err != nil {
			return nil, fmt.Errorf("submission %d: %w", i, err)
		}
		items, ok := e.Data.([]any)
		if !ok {
			items = []any{e.Data}
		}
		subs = append(subs, models.Submission{DataType: e.DataType, Level: level, Items: items})
	}
	if len(subs) == 0 {
		return nil, errors.New("batch contains no submissions")
	}
	return subs, nil
}
