package config

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ProjectFileName is the dbt project manifest.
const ProjectFileName = "dbt_project.yml"

// ModelPath computes the dotted config path of a model declared in
// documentPath: project, then the directories below the matching model
// path, then the model name. Documents outside every model path use their
// own directory.
func ModelPath(project string, modelPaths []string, documentPath, name string) string {
	doc := path.Clean(strings.ReplaceAll(documentPath, `\`, "/"))
	dir := path.Dir(doc)

	rel := dir
	for _, mp := range modelPaths {
		mp = strings.Trim(path.Clean(strings.ReplaceAll(mp, `\`, "/")), "/")
		if mp == "." || mp == "" {
			continue
		}
		if dir == mp {
			rel = ""
			break
		}
		if strings.HasPrefix(dir, mp+"/") {
			rel = strings.TrimPrefix(dir, mp+"/")
			break
		}
	}

	var parts []string
	if project != "" {
		parts = append(parts, project)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg != "" && seg != "." {
			parts = append(parts, seg)
		}
	}
	parts = append(parts, name)
	return strings.Join(parts, ".")
}

// FindProjectRoot walks up from startDir to the first directory containing
// dbt_project.yml. Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if _, err := os.Stat(filepath.Join(dir, ProjectFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
