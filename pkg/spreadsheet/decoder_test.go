package spreadsheet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &values))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestAccepts(t *testing.T) {
	assert.True(t, Accepts(MIMETypeCSV))
	assert.True(t, Accepts(MIMETypeExcel))
	assert.True(t, Accepts(MIMETypeXLSX))
	assert.True(t, Accepts("text/csv; charset=utf-8"))
	assert.False(t, Accepts("application/json"))
	assert.False(t, Accepts("text/plain"))
	assert.False(t, Accepts(""))
	assert.False(t, Accepts("text/csv2"))
	assert.False(t, Accepts("application/vnd.ms-excel.sheet"))
	assert.False(t, Accepts("application/vnd.openxmlformats-officedocument.spreadsheetml"))
	assert.False(t, Accepts("text/*"))
}

func TestDecodeRejectsUnknownTypeBeforeParsing(t *testing.T) {
	_, err := Decode([]byte("a,b\n1,2\n"), "application/pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFileType))
}

func TestDecodeCSV(t *testing.T) {
	data := []byte("nombre_estudiante,anio_inicio,nue\nJosé Núñez,2020,A1\nAna,,A2\n")

	sheet, err := Decode(data, MIMETypeCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"nombre_estudiante", "anio_inicio", "nue"}, sheet.Headers)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "José Núñez", sheet.Rows[0]["nombre_estudiante"])
	assert.Equal(t, "2020", sheet.Rows[0]["anio_inicio"])

	value, ok := sheet.Rows[1]["anio_inicio"]
	assert.True(t, ok, "empty cells keep their key")
	assert.Equal(t, "", value)
}

func TestDecodeCSVShortRecordsFillMissingCells(t *testing.T) {
	sheet, err := Decode([]byte("a,b,c\n1\n"), MIMETypeCSV)
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, Row{"a": "1", "b": "", "c": ""}, sheet.Rows[0])
}

func TestDecodeCSVStripsBOMAndTrimsHeaders(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(" nue ,estado\r\nX1,activo\r\n")...)

	sheet, err := Decode(data, MIMETypeCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"nue", "estado"}, sheet.Headers)
	assert.Equal(t, "X1", sheet.Rows[0]["nue"])
	assert.Equal(t, "activo", sheet.Rows[0]["estado"])
}

func TestDecodeCSVWindows1252(t *testing.T) {
	data := []byte("nombre_estudiante;nue\nJos\xe9 Pe\xf1a;N1\n")

	sheet, err := Decode(data, MIMETypeExcel)
	require.NoError(t, err)
	assert.Equal(t, "José Peña", sheet.Rows[0]["nombre_estudiante"])
}

func TestDecodeCSVSemicolonAndDirective(t *testing.T) {
	sheet, err := Decode([]byte("nue;promedio_graduacion\nN1;8,5\n"), MIMETypeCSV)
	require.NoError(t, err)
	assert.Equal(t, "8,5", sheet.Rows[0]["promedio_graduacion"])

	sheet, err = Decode([]byte("sep=|\nnue|estado\nN1|graduado\n"), MIMETypeCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"nue", "estado"}, sheet.Headers)
	assert.Equal(t, "graduado", sheet.Rows[0]["estado"])
}

func TestDecodeSkipsBlankRowsAndKeepsOrder(t *testing.T) {
	sheet, err := Decode([]byte("\nnue\nA\n,\nB\nC\n"), MIMETypeCSV)
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "A", sheet.Rows[0]["nue"])
	assert.Equal(t, "B", sheet.Rows[1]["nue"])
	assert.Equal(t, "C", sheet.Rows[2]["nue"])
}

func TestDecodeEmptyFile(t *testing.T) {
	cases := map[string][]byte{
		"no content":  {},
		"header only": []byte("nombre_estudiante,anio_inicio,nue,estado,promedio_graduacion\n"),
		"blank lines": []byte("\n\n"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data, MIMETypeCSV)
			assert.True(t, errors.Is(err, ErrEmptyFile))
		})
	}
}

func TestDecodeXLSX(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"nombre_estudiante", "anio_inicio", "nue", "estado", "promedio_graduacion"},
		{"Ángela Ruiz", 2019, "N-1", "Graduado", 9.5},
		{"Luis", 2021, "N-2", "activo", nil},
	})

	sheet, err := Decode(data, MIMETypeXLSX)
	require.NoError(t, err)
	assert.Len(t, sheet.Headers, 5)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "Ángela Ruiz", sheet.Rows[0]["nombre_estudiante"])
	assert.Equal(t, "2019", sheet.Rows[0]["anio_inicio"])
	assert.Equal(t, "9.5", sheet.Rows[0]["promedio_graduacion"])
	assert.Equal(t, "", sheet.Rows[1]["promedio_graduacion"])
}

func TestDecodeXLSXLabelledAsLegacyExcel(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{{"nue"}, {"N-1"}})

	sheet, err := Decode(data, MIMETypeExcel)
	require.NoError(t, err)
	assert.Equal(t, "N-1", sheet.Rows[0]["nue"])
}

func TestDecodeXLSXHeaderOnly(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{{"nue", "estado"}})

	_, err := Decode(data, MIMETypeXLSX)
	assert.True(t, errors.Is(err, ErrEmptyFile))
}

func TestDecodeUnreadable(t *testing.T) {
	_, err := Decode([]byte("PK\x03\x04not really a zip"), MIMETypeXLSX)
	assert.True(t, errors.Is(err, ErrUnreadable))

	legacy := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0x00}
	_, err = Decode(legacy, MIMETypeExcel)
	assert.True(t, errors.Is(err, ErrUnreadable))
}
