package fileutil

import "testing"

func TestFileNameStripsPathAndQuery(t *testing.T) {
	cases := map[string]string{
		"report.docx":                          "report.docx",
		"http://host/cache/files/report.docx?md5=abc&expires=1": "report.docx",
		"../../etc/passwd":                     "passwd",
		"..\\..\\windows\\report.docx":         "report.docx",
		"/var/data/report.docx":                "report.docx",
		"":                                     "",
	}
	for input, want := range cases {
		if got := FileName(input); got != want {
			t.Errorf("FileName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestExtIsLowercasedWithDot(t *testing.T) {
	if got := Ext("Report.DOCX"); got != ".docx" {
		t.Fatalf("Ext = %q, want .docx", got)
	}
	if got := Ext("noext"); got != "" {
		t.Fatalf("Ext = %q, want empty", got)
	}
}

func TestBaseName(t *testing.T) {
	if got := BaseName("dir/report.final.docx"); got != "report.final" {
		t.Fatalf("BaseName = %q", got)
	}
}

func TestTypeClassification(t *testing.T) {
	cases := map[string]DocumentType{
		"a.xlsx": TypeSpreadsheet,
		"a.csv":  TypeSpreadsheet,
		"a.pptx": TypePresentation,
		"a.docx": TypeText,
		"a.bin":  TypeText,
	}
	for name, want := range cases {
		if got := Type(name); got != want {
			t.Errorf("Type(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestInternalExt(t *testing.T) {
	if got := InternalExt(TypeSpreadsheet); got != ".xlsx" {
		t.Fatalf("InternalExt(spreadsheet) = %q", got)
	}
	if got := InternalExt(TypePresentation); got != ".pptx" {
		t.Fatalf("InternalExt(presentation) = %q", got)
	}
	if got := InternalExt(TypeText); got != ".docx" {
		t.Fatalf("InternalExt(text) = %q", got)
	}
}

func TestHasExt(t *testing.T) {
	if !HasExt(SpreadsheetExts, ".XLSX") {
		t.Fatal("expected case-insensitive match")
	}
	if HasExt(SpreadsheetExts, ".docx") {
		t.Fatal("unexpected match")
	}
}
