package upload

import (
	"fmt"
	"os"

	rpdf "rsc.io/pdf"
)

// Info describes a PDF for display before upload.
type Info struct {
	Path  string
	Size  int64
	Pages int
}

// SizeMB returns the size in megabytes with two decimals of precision.
func (i Info) SizeMB() float64 {
	return float64(i.Size) / (1024 * 1024)
}

// Inspect reads the page count of a PDF. Pages is zero when the document
// cannot be parsed; parsing problems never fail the upload.
func Inspect(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	info := Info{Path: path, Size: st.Size()}

	pages, err := countPages(path)
	if err == nil {
		info.Pages = pages
	}
	return info, nil
}

func countPages(path string) (pages int, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			pages = 0
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	r, err := rpdf.NewReader(f, st.Size())
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}
