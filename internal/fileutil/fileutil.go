package fileutil

import (
	"path"
	"strings"
)

// DocumentType classifies a file by extension for the editing service.
type DocumentType string

const (
	TypeText         DocumentType = "text"
	TypeSpreadsheet  DocumentType = "spreadsheet"
	TypePresentation DocumentType = "presentation"
)

var DocumentExts = []string{
	".doc", ".docx", ".docm", ".dot", ".dotx", ".dotm", ".odt", ".fodt",
	".ott", ".rtf", ".txt", ".html", ".htm", ".mht", ".pdf", ".djvu",
	".fb2", ".epub", ".xps",
}

var SpreadsheetExts = []string{
	".xls", ".xlsx", ".xlsm", ".xlt", ".xltx", ".xltm", ".ods", ".fods",
	".ots", ".csv",
}

var PresentationExts = []string{
	".pps", ".ppsx", ".ppsm", ".ppt", ".pptx", ".pptm", ".pot", ".potx",
	".potm", ".odp", ".fodp", ".otp",
}

// FileName extracts the last path segment of a file name or URL, with any
// query string stripped. It never returns a value containing a separator,
// so callers can use it to neutralize path traversal in user input.
func FileName(name string) string {
	if name == "" {
		return ""
	}
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "\\", "/")
	return path.Base("/" + name)
}

// BaseName returns the file name without its extension.
func BaseName(name string) string {
	fileName := FileName(name)
	return strings.TrimSuffix(fileName, Ext(fileName))
}

// Ext returns the lower-cased extension including the leading dot, or ""
// when the name has none.
func Ext(name string) string {
	fileName := FileName(name)
	ext := path.Ext(fileName)
	return strings.ToLower(ext)
}

// Type maps an extension onto the editing service's document types.
// Unknown extensions are treated as text, matching the service default.
func Type(name string) DocumentType {
	ext := Ext(name)
	for _, e := range SpreadsheetExts {
		if e == ext {
			return TypeSpreadsheet
		}
	}
	for _, e := range PresentationExts {
		if e == ext {
			return TypePresentation
		}
	}
	return TypeText
}

// InternalExt returns the OOXML extension a document of the given type
// converts to.
func InternalExt(t DocumentType) string {
	switch t {
	case TypeSpreadsheet:
		return ".xlsx"
	case TypePresentation:
		return ".pptx"
	default:
		return ".docx"
	}
}

// HasExt reports whether ext (with leading dot) is present in exts.
func HasExt(exts []string, ext string) bool {
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
