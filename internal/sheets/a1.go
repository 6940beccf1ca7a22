package sheets

import (
	"strconv"
	"strings"
)

// columnLetters converts a 1-based column number to its A1 letters.
func columnLetters(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// quoteSheet quotes a worksheet title for use in an A1 range.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// cellRange returns the A1 range of a single cell.
func cellRange(sheet string, column, row int) string {
	return quoteSheet(sheet) + "!" + columnLetters(column) + strconv.Itoa(row)
}
