// Package classify decides, from a file's relative path and name alone,
// which Spring Boot artifact it becomes and where that artifact lives in
// the output tree.
package classify

import (
	"path"
	"strings"
	"unicode"

	"github.com/Lllllllleong/projectconverter/internal/scanner"
)

// Category identifies the kind of artifact a source file converts into.
type Category string

const (
	Skip       Category = ""
	Repository Category = "repository"
	Service    Category = "service"
	Model      Category = "model"
	Controller Category = "controller"
	EntryPoint Category = "entrypoint"
	Settings   Category = "settings"
	Descriptor Category = "descriptor"
)

// Output folders, relative to the output root. Root-level artifacts use "".
const (
	RepositoryFolder = "Repository"
	ServiceFolder    = "Service"
	ModelFolder      = "Model"
	ControllerFolder = "Controller"
	ConfigFolder     = "Config"
)

// Assignment is the classification outcome for one file.
type Assignment struct {
	Category Category
	Target   string // output filename
	Folder   string // output subfolder, "" for the root
}

// OutputPath is the slash-separated archive path of the artifact.
func (a Assignment) OutputPath() string {
	if a.Folder == "" {
		return a.Target
	}
	return a.Folder + "/" + a.Target
}

// rule pairs a predicate with the assignment it produces.
type rule struct {
	match  func(t scanner.Task) bool
	assign func(t scanner.Task) Assignment
}

// rules are evaluated in order; the first match wins. Every predicate
// stands alone, so adding a folder heuristic for one category never changes
// another's.
var rules = []rule{
	{
		match: func(t scanner.Task) bool {
			return inFolder(t.RelPath, "Repositories") && isInterfaceName(t.Name) && strings.HasSuffix(t.Name, "Repository.cs")
		},
		assign: func(t scanner.Task) Assignment {
			return Assignment{Category: Repository, Target: javaName(t.Name[1:]), Folder: RepositoryFolder}
		},
	},
	{
		match: func(t scanner.Task) bool {
			return (inFolder(t.RelPath, "Repositories") || inFolder(t.RelPath, "Services")) &&
				!isInterfaceName(t.Name) && strings.HasSuffix(t.Name, "Service.cs")
		},
		assign: func(t scanner.Task) Assignment {
			return Assignment{Category: Service, Target: strings.TrimSuffix(t.Name, scanner.SourceExt) + "Impl.java", Folder: ServiceFolder}
		},
	},
	{
		match: func(t scanner.Task) bool {
			return inFolder(t.RelPath, "Models") && isSource(t.Name)
		},
		assign: func(t scanner.Task) Assignment {
			return Assignment{Category: Model, Target: javaName(t.Name), Folder: ModelFolder}
		},
	},
	{
		match: func(t scanner.Task) bool {
			return inFolder(t.RelPath, "Controllers") && isSource(t.Name)
		},
		assign: func(t scanner.Task) Assignment {
			return Assignment{Category: Controller, Target: javaName(t.Name), Folder: ControllerFolder}
		},
	},
	{
		match: func(t scanner.Task) bool {
			return t.Name == scanner.EntryFile
		},
		assign: func(scanner.Task) Assignment {
			return Assignment{Category: EntryPoint, Target: ApplicationFile}
		},
	},
	{
		match: func(t scanner.Task) bool {
			return t.Name == scanner.SettingsFile
		},
		assign: func(scanner.Task) Assignment {
			return Assignment{Category: Settings, Target: "application.properties"}
		},
	},
	{
		match: func(t scanner.Task) bool {
			return strings.HasSuffix(t.Name, scanner.DescriptorExt)
		},
		assign: func(scanner.Task) Assignment {
			return Assignment{Category: Descriptor, Target: "pom.xml"}
		},
	},
}

// Classify returns the assignment for t, or an Assignment with Category Skip
// when no rule matches.
func Classify(t scanner.Task) Assignment {
	for _, r := range rules {
		if r.match(t) {
			return r.assign(t)
		}
	}
	return Assignment{Category: Skip}
}

// Entry-point artifacts. One Program.cs yields all three.
const (
	ApplicationFile    = "EZoneApplication.java"
	SecurityConfigFile = "SecurityConfig.java"
	WebConfigFile      = "WebConfig.java"
)

// EntryPointArtifacts lists the three artifacts generated from the entry
// point, in emission order.
func EntryPointArtifacts() []Assignment {
	return []Assignment{
		{Category: EntryPoint, Target: ApplicationFile},
		{Category: EntryPoint, Target: SecurityConfigFile, Folder: ConfigFolder},
		{Category: EntryPoint, Target: WebConfigFile, Folder: ConfigFolder},
	}
}

// inFolder reports whether one of the directory components of rel equals
// folder, ignoring case. The file name itself is not a directory component.
func inFolder(rel, folder string) bool {
	dir := path.Dir(rel)
	if dir == "." {
		return false
	}
	for _, seg := range strings.Split(dir, "/") {
		if strings.EqualFold(seg, folder) {
			return true
		}
	}
	return false
}

// isInterfaceName matches the .NET interface convention: "I" followed by an
// upper-case letter.
func isInterfaceName(name string) bool {
	r := []rune(name)
	return len(r) > 1 && r[0] == 'I' && unicode.IsUpper(r[1])
}

func isSource(name string) bool {
	return strings.HasSuffix(name, scanner.SourceExt)
}

func javaName(csName string) string {
	return strings.TrimSuffix(csName, scanner.SourceExt) + ".java"
}
