package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/swarmsync/internal/harness"
)

// LoadMode controls how errors are handled during scenario loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadedScenario pairs a parsed scenario with the file it came from.
type LoadedScenario struct {
	File     string
	Scenario *harness.Scenario
}

// LoadError represents an error that occurred during scenario loading.
type LoadError struct {
	Code    string
	File    string
	Message string
}

func (e *LoadError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FindScenarios returns the scenario files at path: the file itself, or
// every .yaml/.yml file below a directory in lexical order. A non-empty
// filter is a glob matched against the file name without extension.
func FindScenarios(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scenario path not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return errors.Wrap(err, "invalid filter pattern")
			}
			if !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	sort.Strings(files)
	return files, nil
}

// LoadScenarios parses every scenario file at path. In fail-fast mode the
// first bad file ends loading; otherwise every parse error is collected
// and the good files are still returned. Duplicate scenario names are an
// error since names key golden files and stored dumps.
func LoadScenarios(path, filter string, mode LoadMode) ([]LoadedScenario, []error) {
	files, err := FindScenarios(path, filter)
	if err != nil {
		return nil, []error{err}
	}

	var (
		out  []LoadedScenario
		errs []error
	)
	seen := map[string]string{}
	for _, f := range files {
		sc, err := harness.LoadScenario(f)
		if err == nil {
			if prev, dup := seen[sc.Name]; dup {
				err = errors.Newf("scenario name %q already used by %s", sc.Name, prev)
			}
		}
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeInvalidInput, File: f, Message: err.Error()})
			if mode == LoadModeFailFast {
				return out, errs
			}
			continue
		}
		seen[sc.Name] = f
		out = append(out, LoadedScenario{File: f, Scenario: sc})
	}
	return out, errs
}
