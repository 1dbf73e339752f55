package seed

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// TableDef declares an extra global table as "name = column definitions"
type TableDef struct {
	Name    string
	Columns string
}

// ParseSchemaFile parses the table definition file at path
func ParseSchemaFile(path string) ([]TableDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSchema(f)
}

// ParseSchema reads "name = columns" lines. Comment lines and lines without
// '=' are skipped.
func ParseSchema(r io.Reader) ([]TableDef, error) {
	var defs []TableDef
	seen := map[string]bool{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, columns, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		columns = strings.TrimSpace(columns)
		if name == "" || columns == "" {
			return nil, fmt.Errorf("line %d: empty table name or columns", lineNo)
		}
		if seen[name] {
			return nil, fmt.Errorf("line %d: table %q declared twice", lineNo, name)
		}
		seen[name] = true
		defs = append(defs, TableDef{Name: name, Columns: columns})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}
