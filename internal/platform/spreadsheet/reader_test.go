package spreadsheet

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReadCSV_Comma(t *testing.T) {
	in := "patientId,age,temperature,symptoms,rdtResult\n" +
		"PAT-1,7,39.2,\"fièvre, céphalées\",positif\n" +
		",,,,\n" +
		"PAT-2,35,38.1,fatigue,négatif\n"

	rows, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (blank skipped), got %d", len(rows))
	}
	if rows[0]["symptoms"] != "fièvre, céphalées" {
		t.Errorf("unexpected symptoms %q", rows[0]["symptoms"])
	}
	if rows[1]["rdtResult"] != "négatif" {
		t.Errorf("unexpected rdt %q", rows[1]["rdtResult"])
	}
}

func TestReadCSV_SemicolonAndBOM(t *testing.T) {
	in := "\xef\xbb\xbfpatientId;age;temperature\nPAT-1;4;39,6\nPAT-2;12\n"
	rows, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows[0]["patientId"] != "PAT-1" {
		t.Errorf("BOM not stripped from header: %v", rows[0])
	}
	if rows[0]["temperature"] != "39,6" {
		t.Errorf("unexpected temperature %q", rows[0]["temperature"])
	}
	if v, ok := rows[1]["temperature"]; !ok || v != "" {
		t.Errorf("short row should yield empty cell, got %q %v", v, ok)
	}
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("patientId,age\n"))
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	values := [][]interface{}{
		{"patientId", "age", "gender", "temperature", "symptoms", "rdtResult"},
		{"PAT-10", 2, "M", 40.5, "fièvre, vomissements, troubles de conscience", "positif"},
		{"PAT-11", 35, "F", 38.1, "fatigue", "négatif"},
	}
	for i, row := range values {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	rows, err := Read(bytes.NewReader(buf.Bytes()), "export.XLSX")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["patientId"] != "PAT-10" || rows[0]["temperature"] != "40.5" {
		t.Errorf("unexpected first row %v", rows[0])
	}
	if rows[1]["age"] != "35" {
		t.Errorf("unexpected age %q", rows[1]["age"])
	}
}

func TestRead_Unsupported(t *testing.T) {
	_, err := Read(strings.NewReader("x"), "scan.pdf")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
