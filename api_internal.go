package hawk

import (
	"os"
	"path/filepath"
)

func readSourceFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// newFileIncludeResolver returns an IncludeResolver that looks up
// @include/@include_once targets relative to the directory of
// rootPath, falling back to the path as given when it's already
// absolute or resolves from the working directory.
func newFileIncludeResolver(rootPath string) IncludeResolver {
	baseDir := filepath.Dir(rootPath)
	return func(path string) (string, string, error) {
		candidate := path
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(baseDir, path)
		}
		content, err := readSourceFile(candidate)
		if err != nil {
			content, err = readSourceFile(path)
			if err != nil {
				return "", "", err
			}
			candidate = path
		}
		return content, candidate, nil
	}
}
