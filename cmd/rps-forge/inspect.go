package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"rps-forge/internal/inference"
)

// InspectHandler prints the corpus layout and per-split label counts.
func InspectHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, _, err := openCorpus(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	l := m.Layout()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "layout %dx%dx%d, %d classes, %d elements, chunk rows %d\n\n",
		l.Width, l.Height, l.Channels, l.Classes, l.Elements, l.ChunkRows())

	header := []string{"SPLIT", "RANGE", "SAMPLES"}
	for c := 0; c < l.Classes; c++ {
		header = append(header, className(c))
	}

	var data [][]string
	for _, s := range m.Stats() {
		row := []string{s.Split, fmt.Sprintf("[%d, %d)", s.Lo, s.Hi), strconv.Itoa(s.Hi - s.Lo)}
		for _, n := range s.ClassCounts {
			row = append(row, strconv.Itoa(n))
		}
		data = append(data, row)
	}

	table := newTable(out, header)
	table.AppendBulk(data)
	table.Render()
	return nil
}

func className(c int) string {
	if c < len(inference.ClassNames) {
		return inference.ClassNames[c]
	}
	return "class " + strconv.Itoa(c)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}
