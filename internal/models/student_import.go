package models

// ImportRowError lists every problem found on one spreadsheet row. Row is the
// 1-based sheet row, so the first data row below the header is row 2.
type ImportRowError struct {
	Row    int      `json:"row"`
	Errors []string `json:"errors"`
}

// ImportResult aggregates the outcome of one spreadsheet import.
type ImportResult struct {
	Success int              `json:"success"`
	Failed  int              `json:"failed"`
	Errors  []ImportRowError `json:"errors"`
}

// Total returns the number of processed rows.
func (r ImportResult) Total() int {
	return r.Success + r.Failed
}
