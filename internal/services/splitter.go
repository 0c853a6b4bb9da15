package services

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfConf uses relaxed validation so slightly off-spec scans from government
// portals still split cleanly.
func pdfConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// SplitDocument splits a PDF into page-bounded chunks of at most
// maxPagesPerChunk pages each, preserving page order. Documents that fit in
// a single chunk are returned as-is, with no re-encoding. The total page
// count is returned alongside the chunks.
func SplitDocument(data []byte, maxPagesPerChunk int) ([][]byte, int, error) {
	if maxPagesPerChunk <= 0 {
		return nil, 0, fmt.Errorf("maxPagesPerChunk must be positive, got %d", maxPagesPerChunk)
	}

	pageCount, err := api.PageCount(bytes.NewReader(data), pdfConf())
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if pageCount == 0 {
		return nil, 0, ErrMalformedDocument
	}

	if pageCount <= maxPagesPerChunk {
		return [][]byte{data}, pageCount, nil
	}

	var chunks [][]byte
	for start := 1; start <= pageCount; start += maxPagesPerChunk {
		end := start + maxPagesPerChunk - 1
		if end > pageCount {
			end = pageCount
		}

		var buf bytes.Buffer
		pages := []string{fmt.Sprintf("%d-%d", start, end)}
		if err := api.Trim(bytes.NewReader(data), &buf, pages, pdfConf()); err != nil {
			return nil, 0, fmt.Errorf("extracting pages %d-%d: %w", start, end, err)
		}
		chunks = append(chunks, buf.Bytes())
	}

	return chunks, pageCount, nil
}
