package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

func printJSON(w io.Writer, report *models.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func printReport(w io.Writer, report *models.Report, showWindows bool) {
	fmt.Fprintf(w, "Run:           %s\n", report.RunID)
	fmt.Fprintf(w, "Source:        %s\n", report.Source)
	if report.ModelLocation != "" {
		fmt.Fprintf(w, "Model:         %s\n", report.ModelLocation)
	}
	fmt.Fprintf(w, "Windows:       %d train, %d scored (%d rows, %d features)\n",
		report.TrainWindows, report.TestWindows, report.SeqLength+1, report.Features)
	if report.TrainWindows > 0 {
		fmt.Fprintf(w, "Final loss:    %.6g\n", report.FinalLoss)
	}
	fmt.Fprintf(w, "Scores:        mean %.6g, std %.6g, min %.6g, max %.6g\n",
		report.Summary.Mean, report.Summary.StdDev, report.Summary.Min, report.Summary.Max)
	fmt.Fprintf(w, "Threshold:     %.6g (p%.0f)\n", report.Summary.Threshold, models.ThresholdQuantile*100)

	printWindows(w, "Normal windows", report.Normal, showWindows)
	printWindows(w, "Anomalous windows", report.Anomalous, showWindows)
}

func printWindows(w io.Writer, title string, windows []models.ScoredWindow, showWindows bool) {
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(windows))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tINDEX\tSCORE")
	for i, sw := range windows {
		fmt.Fprintf(tw, "%d\t%d\t%.6g\n", i+1, sw.Index, sw.Score)
	}
	tw.Flush()

	if !showWindows {
		return
	}
	for _, sw := range windows {
		fmt.Fprintf(w, "\nwindow %d:\n", sw.Index)
		for _, row := range sw.Window {
			fields := make([]string, len(row))
			for j, v := range row {
				fields[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			fmt.Fprintf(w, "  %s\n", strings.Join(fields, ","))
		}
	}
}
