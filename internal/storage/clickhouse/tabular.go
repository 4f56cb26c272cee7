package clickhouse

import "strings"

// tsvUnescaper decodes the escape sequences ClickHouse emits in TSV output.
// Single pass, so the backslash produced by `\\` is never re-interpreted.
var tsvUnescaper = strings.NewReplacer(
	`\t`, "\t",
	`\n`, "\n",
	`\r`, "\r",
	`\'`, "'",
	`\\`, `\`,
)

// parseTSVWithNames turns a TSVWithNames response body into one map per data
// row, keyed by the header columns. A header-only body yields no rows.
func parseTSVWithNames(body string) []map[string]string {
	lines := strings.Split(body, "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil
	}
	header := strings.Split(lines[0], "\t")
	for i, col := range header {
		header[i] = tsvUnescaper.Replace(col)
	}

	rows := make([]map[string]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(fields) {
				row[col] = tsvUnescaper.Replace(fields[i])
			}
		}
		rows = append(rows, row)
	}
	return rows
}
