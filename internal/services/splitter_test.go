package services

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makePDF builds a minimal but well-formed PDF with the given number of
// empty pages, computing the cross-reference table offsets by hand.
func makePDF(t *testing.T, pages int) []byte {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	addObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")
	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, pages)
	for i := 0; i < pages; i++ {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	addObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(kids, " "), pages))

	for i := 0; i < pages; i++ {
		addObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n", i+3))
	}

	xrefOffset := buf.Len()
	size := pages + 3
	buf.WriteString(fmt.Sprintf("xref\n0 %d\n", size))
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
	}
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		size, xrefOffset))

	return buf.Bytes()
}

func chunkPageCount(t *testing.T, chunk []byte) int {
	t.Helper()
	count, err := api.PageCount(bytes.NewReader(chunk), pdfConf())
	require.NoError(t, err)
	return count
}

func TestSplitDocumentSingleChunkReturnsOriginal(t *testing.T) {
	doc := makePDF(t, 3)

	chunks, numPages, err := SplitDocument(doc, 10)

	require.NoError(t, err)
	assert.Equal(t, 3, numPages)
	require.Len(t, chunks, 1)
	// Small documents are passed through without re-encoding.
	assert.Equal(t, doc, chunks[0])
}

func TestSplitDocumentEvenSplit(t *testing.T) {
	doc := makePDF(t, 6)

	chunks, numPages, err := SplitDocument(doc, 2)

	require.NoError(t, err)
	assert.Equal(t, 6, numPages)
	require.Len(t, chunks, 3)
	for i, chunk := range chunks {
		assert.Equal(t, 2, chunkPageCount(t, chunk), "chunk %d", i+1)
	}
}

func TestSplitDocumentRemainderChunk(t *testing.T) {
	doc := makePDF(t, 5)

	chunks, numPages, err := SplitDocument(doc, 2)

	require.NoError(t, err)
	assert.Equal(t, 5, numPages)
	require.Len(t, chunks, 3)
	assert.Equal(t, 2, chunkPageCount(t, chunks[0]))
	assert.Equal(t, 2, chunkPageCount(t, chunks[1]))
	assert.Equal(t, 1, chunkPageCount(t, chunks[2]))
}

func TestSplitDocumentMalformedInput(t *testing.T) {
	_, _, err := SplitDocument([]byte("this is not a pdf"), 10)

	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestSplitDocumentInvalidChunkSize(t *testing.T) {
	doc := makePDF(t, 2)

	_, _, err := SplitDocument(doc, 0)

	assert.Error(t, err)
}
