package prompts

import (
	"embed"
	"errors"
	"io/fs"
	"path/filepath"
)

//go:embed *.md
var promptFiles embed.FS

// GetPrompts returns every embedded prompt keyed by file name without
// the .md extension.
func GetPrompts() (map[string]string, error) {
	prompts := make(map[string]string)

	err := fs.WalkDir(promptFiles, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}

		content, err := promptFiles.ReadFile(path)
		if err != nil {
			return err
		}

		fileName := filepath.Base(path)
		key := fileName[:len(fileName)-len(filepath.Ext(fileName))]
		prompts[key] = string(content)

		return nil
	})

	if err != nil {
		return nil, err
	}

	return prompts, nil
}

func GetSinglePrompt(name string) (val string, err error) {
	prompts, err := GetPrompts()
	if err != nil {
		return "", err
	}
	val, ok := prompts[name]
	if !ok {
		return "", errors.New("the prompt does not exist")
	}
	return val, nil
}
