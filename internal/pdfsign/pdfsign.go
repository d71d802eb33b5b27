// Package pdfsign inspects uploaded PDFs and stamps signature images onto them.
package pdfsign

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	ErrEncrypted  = errors.New("pdf is encrypted or password-protected")
	ErrCorrupt    = errors.New("pdf is corrupted or invalid")
	ErrProcessing = errors.New("pdf could not be processed")
)

// headerWindow is how far into the file the %PDF- marker may appear.
const headerWindow = 1024

func init() {
	api.DisableConfigDir()
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Info describes a parsed document.
type Info struct {
	Pages int
	// FirstPage is the MediaBox size of page index 0 in points.
	FirstPage types.Dim
}

// Inspect parses data and reports which of ErrEncrypted, ErrCorrupt or
// ErrProcessing applies when it cannot be used.
func Inspect(data []byte) (*Info, error) {
	if !hasHeader(data) {
		return nil, ErrCorrupt
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), newConfig())
	if err != nil {
		return nil, classify(err)
	}
	if ctx.Encrypt != nil {
		return nil, ErrEncrypted
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, classify(err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, classify(err)
	}
	if ctx.PageCount < 1 {
		return nil, fmt.Errorf("%w: document has no pages", ErrCorrupt)
	}

	dims, err := ctx.PageDims()
	if err != nil || len(dims) == 0 {
		return nil, fmt.Errorf("%w: page dimensions: %v", ErrProcessing, err)
	}
	return &Info{Pages: ctx.PageCount, FirstPage: dims[0]}, nil
}

func hasHeader(data []byte) bool {
	n := len(data)
	if n > headerWindow {
		n = headerWindow
	}
	return bytes.Contains(data[:n], []byte("%PDF-"))
}

var corruptMarkers = []string{"corrupt", "invalid", "malformed", "header", "eof", "xref", "trailer"}

// classify buckets parser errors by message since pdfcpu does not export typed errors
// for most of them.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
		return fmt.Errorf("%w: %v", ErrEncrypted, err)
	}
	for _, m := range corruptMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrProcessing, err)
}
