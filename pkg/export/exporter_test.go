package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-records-api/pkg/spreadsheet"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"nue", "nombre_estudiante"},
		Rows: []map[string]string{
			{"nue": "N1", "nombre_estudiante": "José"},
			{"nue": "N2"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}))
	assert.Equal(t, "nue,nombre_estudiante\nN1,José\nN2,\n", string(out[3:]))

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestXLSXExporterRoundTrip(t *testing.T) {
	out, err := NewXLSXExporter("Estudiantes").Render(sampleDataset())
	require.NoError(t, err)

	sheet, err := spreadsheet.Decode(out, spreadsheet.MIMETypeXLSX)
	require.NoError(t, err)
	assert.Equal(t, []string{"nue", "nombre_estudiante"}, sheet.Headers)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "José", sheet.Rows[0]["nombre_estudiante"])
	assert.Equal(t, "", sheet.Rows[1]["nombre_estudiante"])
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(), "Estudiantes")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}
