package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
)

type filePart struct {
	field string
	path  string
}

// multipartBody streams the files through a pipe so large PDFs are never
// held in memory. The returned reader must be consumed or closed.
func multipartBody(parts []filePart) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeParts(mw, parts)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func writeParts(mw *multipart.Writer, parts []filePart) error {
	for _, p := range parts {
		if err := writePart(mw, p); err != nil {
			return err
		}
	}
	return nil
}

func writePart(mw *multipart.Writer, p filePart) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.path, err)
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, filepath.Base(p.path)))
	h.Set("Content-Type", "application/pdf")

	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", p.path, err)
	}
	return nil
}
