// Package upload checks files locally before they are sent to the backend.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest PDF the backend accepts.
const MaxFileSize int64 = 50 * 1024 * 1024

var (
	ErrTooLarge    = errors.New("file exceeds the 50MB limit")
	ErrInvalidType = errors.New("file is not a PDF")
	ErrNoPrincipal = errors.New("principal proposal file missing")
)

// Texts shown to the user for each validation failure.
const (
	MsgTooLarge    = "File is too large. Maximum size is 50MB."
	MsgInvalidType = "Invalid file type. Please upload a PDF file."
	MsgNoPrincipal = "A principal proposal file is required."
)

// Message returns the user-facing text for a validation error, prefixed
// with the file name when known. Other errors yield their Error text.
func Message(err error) string {
	var msg string
	switch {
	case errors.Is(err, ErrTooLarge):
		msg = MsgTooLarge
	case errors.Is(err, ErrInvalidType):
		msg = MsgInvalidType
	case errors.Is(err, ErrNoPrincipal):
		msg = MsgNoPrincipal
	default:
		return err.Error()
	}
	var fe *FileError
	if errors.As(err, &fe) {
		return filepath.Base(fe.Path) + ": " + msg
	}
	return msg
}

var pdfMagic = []byte("%PDF-")

// FileError ties a validation failure to the offending file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", filepath.Base(e.Path), e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ValidatePDF rejects files that are not regular PDF files of at most
// MaxFileSize bytes.
func ValidatePDF(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &FileError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &FileError{Path: path, Err: ErrInvalidType}
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return &FileError{Path: path, Err: ErrInvalidType}
	}
	if info.Size() > MaxFileSize {
		return &FileError{Path: path, Err: ErrTooLarge}
	}

	ok, err := hasPDFHeader(path)
	if err != nil {
		return &FileError{Path: path, Err: err}
	}
	if !ok {
		return &FileError{Path: path, Err: ErrInvalidType}
	}
	return nil
}

// ValidateProposal requires exactly one principal file; attachments are
// optional and unlimited.
func ValidateProposal(principal string, attachments []string) error {
	if principal == "" {
		return ErrNoPrincipal
	}
	if err := ValidatePDF(principal); err != nil {
		return err
	}
	for _, a := range attachments {
		if err := ValidatePDF(a); err != nil {
			return err
		}
	}
	return nil
}

func hasPDFHeader(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(head, pdfMagic), nil
}
