package store

import (
	"errors"
	"strings"
	"testing"
)

func TestReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr error
		keyword string
	}{
		{name: "select", query: "  SELECT 1  "},
		{name: "with", query: "with c as (select 1) select * from c"},
		{name: "reset is not set", query: "SELECT reset_count FROM wins"},
		{name: "keyword in comment", query: "SELECT 1 -- DROP TABLE wins\n"},
		{name: "keyword in block comment", query: "/* DELETE */ SELECT 1"},
		{name: "chained", query: "SELECT 1; SELECT 2", wantErr: errChained},
		{name: "insert", query: "INSERT INTO wins VALUES (1)", wantErr: errNotRead},
		{name: "comment hides write", query: "/* SELECT */ DROP TABLE wins", wantErr: errNotRead},
		{name: "copy in select", query: "SELECT * FROM wins WHERE 1 = 1 AND COPY", keyword: "COPY"},
		{name: "lowercase pragma", query: "select * from pragma_table_info('wins') where pragma = 1", keyword: "PRAGMA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readOnly(tt.query)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("readOnly(%q) err = %v, want %v", tt.query, err, tt.wantErr)
				}
			case tt.keyword != "":
				if err == nil || !strings.Contains(err.Error(), tt.keyword) {
					t.Fatalf("readOnly(%q) err = %v, want disallowed %s", tt.query, err, tt.keyword)
				}
			default:
				if err != nil {
					t.Fatalf("readOnly(%q): %v", tt.query, err)
				}
				if got != strings.TrimSpace(tt.query) {
					t.Errorf("readOnly(%q) = %q", tt.query, got)
				}
			}
		})
	}
}
