package dbquery

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{"SELECT id FROM products WHERE id = $1", "SELECT", "products"},
		{"select * from orders", "SELECT", "orders"},
		{"INSERT INTO products (name) VALUES ($1)", "INSERT", "products"},
		{"UPDATE products SET name = $1", "UPDATE", "products"},
		{"DELETE FROM products WHERE id = $1", "DELETE", "products"},
		{"SELECT 1", "SELECT", "unknown"},
		{"TRUNCATE products", "TRUNCATE", "unknown"},
		{"", "UNKNOWN", "unknown"},
		{`SELECT * FROM "Products";`, "SELECT", "products"},
	}
	for _, tc := range cases {
		op, table := classify(tc.sql)
		if op != tc.operation || table != tc.table {
			t.Errorf("classify(%q) = (%q, %q), want (%q, %q)", tc.sql, op, table, tc.operation, tc.table)
		}
	}
}
