package store

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// maxQueryRows caps ExecuteQuery results.
const maxQueryRows = 1000

var (
	errChained   = errors.New("query must not contain semicolons")
	errNotRead   = errors.New("only SELECT/WITH queries are allowed")
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`/\*[\s\S]*?\*/`)

	// Word boundaries keep RESET from tripping on SET.
	writeKeyword = regexp.MustCompile(`(?i)\b(` + strings.Join([]string{
		"INSERT", "UPDATE", "DELETE", "REPLACE", "TRUNCATE",
		"DROP", "CREATE", "ALTER",
		"COPY", "EXPORT", "IMPORT", "LOAD", "INSTALL",
		"ATTACH", "DETACH",
		"CALL", "EXECUTE", "PRAGMA", "SET", "VACUUM",
	}, "|") + `)\b`)
)

// withoutComments blanks out block and line comments so keywords hidden in
// them neither pass nor fail the guard.
func withoutComments(query string) string {
	return lineComment.ReplaceAllString(blockComment.ReplaceAllString(query, " "), "")
}

// readOnly returns the query ready to run, or an error if it could modify
// the database or chain statements.
func readOnly(query string) (string, error) {
	query = strings.TrimSpace(query)
	if strings.ContainsRune(query, ';') {
		return "", errChained
	}

	body := strings.TrimSpace(withoutComments(query))
	head := strings.ToUpper(body)
	if !strings.HasPrefix(head, "SELECT") && !strings.HasPrefix(head, "WITH") {
		return "", errNotRead
	}
	if kw := writeKeyword.FindString(body); kw != "" {
		return "", fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(kw))
	}
	return query, nil
}
