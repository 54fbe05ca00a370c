package billing

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/meridian-hms/meridian/internal/money"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var summaryHeader = []string{
	"Invoice ID", "Number", "Patient ID", "Status", "Subtotal",
	"Discount", "Total", "Created At", "Created By", "Prescription ID", "Services",
}

func summaryRow(inv Invoice) []string {
	rx := "N/A"
	if inv.PrescriptionID != nil {
		rx = fmt.Sprintf("%d", *inv.PrescriptionID)
	}
	return []string{
		fmt.Sprintf("%d", inv.ID),
		inv.Number,
		fmt.Sprintf("%d", inv.PatientID),
		string(inv.Status),
		money.Format(inv.Subtotal),
		money.Format(inv.Discount),
		money.Format(inv.Total),
		inv.CreatedAt.Format(exportTimeLayout),
		fmt.Sprintf("%d", inv.CreatedBy),
		rx,
		servicesSummary(inv.Services),
	}
}

// servicesSummary names the first three services.
func servicesSummary(items []LineItem) string {
	names := make([]string, 0, 3)
	for i, item := range items {
		if i == 3 {
			break
		}
		names = append(names, item.Name)
	}
	out := strings.Join(names, ", ")
	if len(items) > 3 {
		out += "..."
	}
	return out
}

// WriteInvoicesCSV writes one summary row per invoice.
func WriteInvoicesCSV(w io.Writer, invoices []Invoice) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	for _, inv := range invoices {
		if err := cw.Write(summaryRow(inv)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteInvoiceCSV writes a single invoice with its line items and payments.
func WriteInvoiceCSV(w io.Writer, inv Invoice, payments []Payment) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Invoice ID", fmt.Sprintf("%d", inv.ID)},
		{"Number", inv.Number},
		{"Patient ID", fmt.Sprintf("%d", inv.PatientID)},
		{"Status", string(inv.Status)},
		{"Created At", inv.CreatedAt.Format(exportTimeLayout)},
		{},
		{"Code", "Name", "Amount"},
	}
	for _, item := range inv.Services {
		amount := string(item.Amount)
		if parsed, err := money.Parse(amount); err == nil {
			amount = money.Format(parsed)
		}
		rows = append(rows, []string{item.Code, item.Name, amount})
	}
	rows = append(rows,
		[]string{},
		[]string{"Subtotal", money.Format(inv.Subtotal)},
		[]string{"Discount", money.Format(inv.Discount)},
		[]string{"Total", money.Format(inv.Total)},
	)
	if inv.PrescriptionID != nil {
		rows = append(rows, []string{}, []string{"Prescription ID", fmt.Sprintf("%d", *inv.PrescriptionID)})
	}
	if len(payments) > 0 {
		rows = append(rows, []string{}, []string{"Payment ID", "Method", "Reference", "Amount", "Recorded At"})
		for _, p := range payments {
			rows = append(rows, []string{
				fmt.Sprintf("%d", p.ID),
				string(p.Method),
				p.Reference,
				money.Format(p.Amount),
				p.CreatedAt.Format(exportTimeLayout),
			})
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteInvoicesXLSX writes the invoice summary as a workbook.
func WriteInvoicesXLSX(w io.Writer, invoices []Invoice) error {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Invoices"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}
	if err := writeSheetRow(f, sheet, 1, summaryHeader); err != nil {
		return err
	}
	for i, inv := range invoices {
		if err := writeSheetRow(f, sheet, i+2, summaryRow(inv)); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func writeSheetRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheet, cell, &cells)
}
