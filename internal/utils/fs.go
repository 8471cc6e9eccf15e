package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// AssetsDir is an extra search root for local image and shader files.
var AssetsDir string

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		Warn("Could not expand path %s: %v", path, err)
		return path
	}
	return expanded
}

// IsRemote reports whether a texture source must be fetched over HTTP.
func IsRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// ResolveAssetPath finds a local file, trying the path as given, then the
// local assets folder, then AssetsDir.
func ResolveAssetPath(relPath string) string {
	relPath = ExpandPath(relPath)
	if _, err := os.Stat(relPath); err == nil {
		return relPath
	}

	localPath := filepath.Join("assets", relPath)
	if _, err := os.Stat(localPath); err == nil {
		return localPath
	}

	if AssetsDir != "" {
		customPath := filepath.Join(AssetsDir, relPath)
		if _, err := os.Stat(customPath); err == nil {
			return customPath
		}
	}

	return relPath
}
