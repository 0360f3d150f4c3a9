package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/ericmeyer1/buzzline-06-meyer/internal/dashboard/application"
)

// BuildEfficiencyPDF renders a one-page efficiency report for a frame.
func BuildEfficiencyPDF(frame application.Frame) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Manufacturing Efficiency Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", frame.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Machines: %d", frame.Summary.Machines))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Readings processed: %d", frame.Summary.Processed))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Anomalies detected: %d", frame.Summary.AnomalyCount))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Mode", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Readings", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Anomalies", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Avg Efficiency", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Band", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, mode := range frame.Modes {
		pdf.CellFormat(40, 6, string(mode.Mode), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", mode.Count), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", mode.Anomalies), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.1f%%", mode.Average), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, string(mode.Band), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 6, "Machine", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Mode", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Temp (C)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Vib (Hz)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Efficiency", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Anomaly", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, machine := range frame.Machines {
		status := machine.Status
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", machine.MachineID), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, string(status.Mode), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.1f", status.Temperature), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", status.Vibration), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.1f%%", status.Efficiency), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, yesNo(status.IsAnomaly), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildEfficiencyXLSX renders the frame as a workbook with a summary, a
// modes and a machines sheet.
func BuildEfficiencyXLSX(frame application.Frame) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	modesSheet := "modes"
	machinesSheet := "machines"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(modesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(machinesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Manufacturing Efficiency Report")
	_ = f.SetCellValue(summarySheet, "A3", "Generated")
	_ = f.SetCellValue(summarySheet, "B3", frame.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "Machines")
	_ = f.SetCellValue(summarySheet, "B4", frame.Summary.Machines)
	_ = f.SetCellValue(summarySheet, "A5", "Readings processed")
	_ = f.SetCellValue(summarySheet, "B5", frame.Summary.Processed)
	_ = f.SetCellValue(summarySheet, "A6", "Anomalies detected")
	_ = f.SetCellValue(summarySheet, "B6", frame.Summary.AnomalyCount)
	_ = f.SetCellValue(summarySheet, "A7", "Duplicates skipped")
	_ = f.SetCellValue(summarySheet, "B7", frame.Summary.Duplicates)
	_ = f.SetCellValue(summarySheet, "A8", "Malformed skipped")
	_ = f.SetCellValue(summarySheet, "B8", frame.Summary.Malformed)

	_ = f.SetCellValue(modesSheet, "A1", "Mode")
	_ = f.SetCellValue(modesSheet, "B1", "Readings")
	_ = f.SetCellValue(modesSheet, "C1", "Anomalies")
	_ = f.SetCellValue(modesSheet, "D1", "Average Efficiency")
	_ = f.SetCellValue(modesSheet, "E1", "Band")
	for i, mode := range frame.Modes {
		row := i + 2
		_ = f.SetCellValue(modesSheet, fmt.Sprintf("A%d", row), string(mode.Mode))
		_ = f.SetCellValue(modesSheet, fmt.Sprintf("B%d", row), mode.Count)
		_ = f.SetCellValue(modesSheet, fmt.Sprintf("C%d", row), mode.Anomalies)
		_ = f.SetCellValue(modesSheet, fmt.Sprintf("D%d", row), mode.Average)
		_ = f.SetCellValue(modesSheet, fmt.Sprintf("E%d", row), string(mode.Band))
	}

	_ = f.SetCellValue(machinesSheet, "A1", "Machine")
	_ = f.SetCellValue(machinesSheet, "B1", "Mode")
	_ = f.SetCellValue(machinesSheet, "C1", "Temperature")
	_ = f.SetCellValue(machinesSheet, "D1", "Vibration")
	_ = f.SetCellValue(machinesSheet, "E1", "Efficiency")
	_ = f.SetCellValue(machinesSheet, "F1", "Anomaly")
	_ = f.SetCellValue(machinesSheet, "G1", "Last Reading")
	for i, machine := range frame.Machines {
		row := i + 2
		status := machine.Status
		_ = f.SetCellValue(machinesSheet, fmt.Sprintf("A%d", row), machine.MachineID)
		_ = f.SetCellValue(machinesSheet, fmt.Sprintf("B%d", row), string(status.Mode))
		_ = f.SetCellValue(machinesSheet, fmt.Sprintf("C%d", row), status.Temperature)
		_ = f.SetCellValue(machinesSheet, fmt.Sprintf("D%d", row), status.Vibration)
		_ = f.SetCellValue(machinesSheet, fmt.Sprintf("E%d", row), status.Efficiency)
		_ = f.SetCellValue(machinesSheet, fmt.Sprintf("F%d", row), status.IsAnomaly)
		_ = f.SetCellValue(machinesSheet, fmt.Sprintf("G%d", row), status.Timestamp)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
