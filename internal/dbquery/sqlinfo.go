package dbquery

import "strings"

// classify extracts the operation verb and primary table from a SQL
// statement for span attributes. It is a token scan, not a parser: the
// demo workload is plain single-table statements and the attributes only
// need the leading verb and the relation it targets.
func classify(sql string) (operation, table string) {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN", "unknown"
	}
	operation = strings.ToUpper(strings.TrimSpace(fields[0]))
	table = "unknown"
	switch operation {
	case "SELECT", "DELETE":
		table = tokenAfter(fields, "FROM")
	case "INSERT":
		table = tokenAfter(fields, "INTO")
	case "UPDATE":
		if len(fields) > 1 {
			table = cleanIdent(fields[1])
		}
	}
	return operation, table
}

func tokenAfter(fields []string, keyword string) string {
	for i, f := range fields {
		if strings.EqualFold(f, keyword) && i+1 < len(fields) {
			return cleanIdent(fields[i+1])
		}
	}
	return "unknown"
}

func cleanIdent(s string) string {
	s = strings.TrimFunc(s, func(r rune) bool {
		return r == '(' || r == ')' || r == ',' || r == ';' || r == '"'
	})
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s)
}
