package main

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/JonMunkholm/intake/internal/core"
)

// render writes v as indented JSON or as a table of rows.
func (c *cli) render(w io.Writer, v any, headers []string, rows [][]string) error {
	if c.format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	table := tablewriter.NewTable(w)
	h := make([]any, len(headers))
	for i, s := range headers {
		h[i] = s
	}
	table.Header(h...)
	for _, row := range rows {
		cells := make([]any, len(row))
		for i, s := range row {
			cells[i] = s
		}
		if err := table.Append(cells...); err != nil {
			return err
		}
	}
	return table.Render()
}

var recordHeaders = []string{"ID", "Product", "Manufacturer", "Variant", "Kg", "Category", "Status"}

func recordRow(r core.StagingRecord) []string {
	return []string{
		r.ID.String(),
		r.ProductName,
		r.ManufacturerName,
		r.VariantNormalized,
		weight(r.WeightKg),
		category(r.ProductCategory, r.ProductSubcategory),
		string(r.Status),
	}
}

func weight(kg *int64) string {
	if kg == nil {
		return "?"
	}
	return strconv.FormatInt(*kg, 10)
}

func category(cat, sub *string) string {
	switch {
	case cat == nil:
		return "-"
	case sub == nil:
		return *cat
	default:
		return *cat + " > " + *sub
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	msg := core.MapError(err)
	return msg.Code + ": " + err.Error()
}
