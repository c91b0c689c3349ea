package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"triplecheck/internal/validation/models"
)

var errValidationFailed = errors.New("validation failed")

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var dataType string
	var levelName string
	var asJSON bool
	var failOnFailed bool

	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Validate one JSON object, or an array of items, as a single submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := models.ParseLevel(levelName)
			if err != nil {
				return err
			}
			if strings.TrimSpace(dataType) == "" {
				return errors.New("--type is required")
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var payload any
			if err := decodeJSON(data, &payload); err != nil {
				return err
			}
			items, ok := payload.([]any)
			if !ok {
				items = []any{payload}
			}

			svc, err := ctx.engine(cmd)
			if err != nil {
				return err
			}
			report := svc.Validate(cmd.Context(), models.Submission{DataType: dataType, Level: level, Items: items})

			if asJSON {
				err = writeJSON(cmd, report)
			} else {
				err = printReport(cmd, report)
			}
			if err != nil {
				return err
			}
			if failOnFailed && report.OverallStatus == models.StatusFailed {
				return fmt.Errorf("%w: %s", errValidationFailed, report.ValidationID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataType, "type", "t", "", "Data type of the submission (lead, property, intelligence, repository)")
	cmd.Flags().StringVarP(&levelName, "level", "l", "strict", "Validation level: strict, standard or relaxed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	cmd.Flags().BoolVar(&failOnFailed, "fail", false, "Exit non-zero when the overall status is FAILED")
	return cmd
}
