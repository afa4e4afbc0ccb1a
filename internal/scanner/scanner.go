// Package scanner walks an extracted .NET project once, collecting the
// context files later instruction documents embed and the ordered list of
// files eligible for conversion.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Well-known project file names.
const (
	DbContextFile = "AppDbContext.cs"
	EntryFile     = "Program.cs"
	StartupFile   = "Startup.cs"
	SettingsFile  = "appsettings.json"

	SourceExt     = ".cs"
	DescriptorExt = ".csproj"
)

// Bundle holds the full text of the project's context files.
type Bundle struct {
	DbContext string // every DbContext source, concatenated
	Program   string // last Program.cs walked; the entry point converts its own task text
	Startup   string
	Csproj    string
}

// Task is one file eligible for conversion.
type Task struct {
	Path    string // absolute path on disk
	RelPath string // slash-separated, relative to the extraction root
	Name    string
}

// Scan walks root in lexical order and returns the context bundle and the
// eligible tasks in walk order.
func Scan(root string) (Bundle, []Task, error) {
	var bundle Bundle
	var tasks []Task

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()

		if err := collectContext(&bundle, path, name); err != nil {
			return err
		}

		if IsEligible(name) {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			tasks = append(tasks, Task{Path: path, RelPath: filepath.ToSlash(rel), Name: name})
		}
		return nil
	})
	if err != nil {
		return Bundle{}, nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return bundle, tasks, nil
}

func collectContext(b *Bundle, path, name string) error {
	var slot *string
	appendText := false

	switch {
	case isDbContext(name):
		slot, appendText = &b.DbContext, true
	case name == EntryFile:
		slot = &b.Program
	case name == StartupFile:
		slot = &b.Startup
	case strings.HasSuffix(name, DescriptorExt):
		slot = &b.Csproj
	default:
		return nil
	}

	text, err := ReadText(path)
	if err != nil {
		return err
	}
	if appendText {
		*slot += text + "\n"
	} else {
		*slot = text
	}
	return nil
}

func isDbContext(name string) bool {
	return name == DbContextFile || (strings.HasSuffix(name, SourceExt) && strings.Contains(name, "DbContext"))
}

// IsEligible reports whether a file with this base name is converted.
func IsEligible(name string) bool {
	return strings.HasSuffix(name, SourceExt) || name == SettingsFile || strings.HasSuffix(name, DescriptorExt)
}

// ReadText reads a file as UTF-8, dropping invalid byte sequences.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
