package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"triplecheck/internal/validation/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func ratio(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func printReport(cmd *cobra.Command, r *models.Report) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validation %s (%s, %s)\n", r.ValidationID, r.DataType, r.Level)

	rows := make([][]string, 0, 3)
	for _, step := range r.Steps() {
		if step == nil {
			continue
		}
		rows = append(rows, []string{
			step.Step,
			string(step.Status),
			ratio(step.Score),
			ratio(step.Confidence),
			strconv.Itoa(len(step.Errors)),
			strconv.Itoa(len(step.Warnings)),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "Status", "Score", "Confidence", "Errors", "Warnings"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
	fmt.Fprintf(out, "Overall: %s  score %s  confidence %s  meets %s: %s\n",
		r.OverallStatus, ratio(r.OverallScore), ratio(r.OverallConfidence), r.Level, yesNo(r.MeetsLevel()))

	for _, step := range r.Steps() {
		if step == nil {
			continue
		}
		for _, e := range step.Errors {
			fmt.Fprintf(out, "  error   [%s] %s\n", step.Step, e)
		}
		for _, w := range step.Warnings {
			fmt.Fprintf(out, "  warning [%s] %s\n", step.Step, w)
		}
	}
	return nil
}

func printSummary(cmd *cobra.Command, s models.BatchSummary) error {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(s.Reports))
	for i, r := range s.Reports {
		if r == nil {
			continue
		}
		rows = append(rows, []string{
			strconv.Itoa(i),
			r.ValidationID,
			r.DataType,
			string(r.OverallStatus),
			ratio(r.OverallScore),
			ratio(r.OverallConfidence),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Validation ID", "Type", "Status", "Score", "Confidence"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
	fmt.Fprintf(out, "Passed %d/%d (%.1f%%), failed %d\n", s.Passed, s.Total, s.PassRate*100, s.Failed)
	return nil
}
