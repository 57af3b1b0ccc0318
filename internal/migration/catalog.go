package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// downSuffix marks a file carrying a unit's inverse payload. A forward file
// 003_add_users.sql pairs with 003_add_users.down.sql.
const downSuffix = ".down.sql"

// DirCatalog discovers migration units from a source directory.
type DirCatalog struct {
	dir     string
	pattern *regexp.Regexp
}

// NewDirCatalog returns a catalog over the given directory. Forward files
// must be named {version}_{description}.sql with a numeric version prefix;
// the prefix defines the total application order.
func NewDirCatalog(dir string) *DirCatalog {
	return &DirCatalog{
		dir:     dir,
		pattern: regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`),
	}
}

// List scans the source directory and returns every unit in application
// order. Names must be unique per numeric version; ties are rejected.
func (c *DirCatalog) List() ([]Unit, error) {
	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil, &UnitError{Path: c.dir, Op: "scan directory", Err: fmt.Errorf("migration directory does not exist")}
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, &UnitError{Path: c.dir, Op: "read directory", Err: err}
	}

	// Collect inverse payloads first so forward files can pair with them.
	downs := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, downSuffix) {
			continue
		}
		forward := strings.TrimSuffix(name, downSuffix) + ".sql"
		payload, err := c.readPayload(filepath.Join(c.dir, name))
		if err != nil {
			return nil, err
		}
		downs[forward] = payload
	}

	var units []Unit
	versions := make(map[int]string) // numeric version -> filename
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, downSuffix) {
			continue
		}
		version, err := c.validateName(name)
		if err != nil {
			return nil, &UnitError{Path: name, Op: "validate filename", Err: err}
		}
		if existing, ok := versions[version]; ok {
			return nil, &UnitError{Path: name, Op: "check duplicates",
				Err: fmt.Errorf("%w: version %d found in both %s and %s", ErrDuplicateVersion, version, existing, name)}
		}
		versions[version] = name

		path := filepath.Join(c.dir, name)
		statements, err := c.readPayload(path)
		if err != nil {
			return nil, err
		}
		down := downs[name]
		units = append(units, Unit{
			Name:               strings.TrimSuffix(name, ".sql"),
			Statements:         statements,
			RollbackStatements: down,
			Checksum:           ComputeChecksum(statements, down),
			Path:               path,
		})
	}

	// Sort by numeric version so 2 orders before 10; equal-width prefixes
	// also keep lexical and chronological order aligned.
	sort.Slice(units, func(i, j int) bool {
		vi, vj := numericPrefix(units[i].Name), numericPrefix(units[j].Name)
		if vi != vj {
			return vi < vj
		}
		return units[i].Name < units[j].Name
	})
	return units, nil
}

// Diff returns the units whose name has no record in status applied, in
// application order. Failed and rolled-back units are pending again.
func (c *DirCatalog) Diff(ctx context.Context, log Log) ([]Unit, error) {
	units, err := c.List()
	if err != nil {
		return nil, err
	}
	var pending []Unit
	for _, unit := range units {
		applied, err := log.IsApplied(ctx, unit.Name)
		if err != nil {
			return nil, fmt.Errorf("diff against migration log: %w", err)
		}
		if !applied {
			pending = append(pending, unit)
		}
	}
	return pending, nil
}

// validateName checks the naming convention and returns the numeric version.
func (c *DirCatalog) validateName(filename string) (int, error) {
	matches := c.pattern.FindStringSubmatch(filename)
	if len(matches) != 3 {
		return 0, fmt.Errorf("%w: %q does not match {version}_{description}.sql", ErrInvalidUnitFile, filename)
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("%w: version %q is not numeric", ErrInvalidUnitFile, matches[1])
	}
	return version, nil
}

func (c *DirCatalog) readPayload(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", &UnitError{Path: path, Op: "read file", Err: err}
	}
	payload := string(raw)
	if strings.TrimSpace(payload) == "" {
		return "", &UnitError{Path: path, Op: "validate content",
			Err: fmt.Errorf("%w: file is empty", ErrInvalidUnitFile)}
	}
	return payload, nil
}

func numericPrefix(name string) int {
	prefix, _, _ := strings.Cut(name, "_")
	version, _ := strconv.Atoi(prefix)
	return version
}
