package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Section Roster",
		Headers: []string{"Student", "Enrolled At"},
		Rows: []map[string]string{
			{"Student": "S1", "Enrolled At": "2026-01-10"},
			{"Student": "S2, Jr", "Enrolled At": "2026-01-11"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestRenderCSVQuotesValues(t *testing.T) {
	body, err := RenderCSV(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Student,Enrolled At\nS1,2026-01-10\n\"S2, Jr\",2026-01-11\n", string(body))
}

func TestRenderPDF(t *testing.T) {
	doc, err := Render(FormatPDF, "roster", sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "roster.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.True(t, bytes.HasPrefix(doc.Body, []byte("%PDF")))
}

func TestRenderRequiresHeaders(t *testing.T) {
	_, err := Render(FormatCSV, "empty", Dataset{})
	assert.Error(t, err)
}
