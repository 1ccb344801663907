// Package workspacefile builds the editor workspace document that lists
// the current directory plus every reconciled target, so an editor can
// open the whole tree as one multi-root workspace.
package workspacefile

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// DefaultName is used when the caller has no preference of its own.
const DefaultName = "entire-project.code-workspace"

// Folder is one entry of the workspace document's "folders" array.
type Folder struct {
	Path string `json:"path"`
}

// Document is the full editor workspace file shape.
type Document struct {
	Folders []Folder `json:"folders"`
}

// Build returns the document for the given target directories: "." first,
// then each target rendered as "../<base>" relative to the workspace
// directory the file is written into.
func Build(targetDirs []string) Document {
	doc := Document{Folders: []Folder{{Path: "."}}}
	for _, dir := range targetDirs {
		doc.Folders = append(doc.Folders, Folder{Path: filepath.ToSlash(filepath.Join("..", filepath.Base(dir)))})
	}
	return doc
}

// Write renders doc as indented JSON and writes it to path.
func Write(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
