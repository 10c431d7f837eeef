package action

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PlaceholderFile stands in for a file reference that could not be resolved
const PlaceholderFile = "/file"

// ErrStaleFile is returned when a file reference no longer points at a readable file
var ErrStaleFile = errors.New("stale file reference")

// FileRef is a persisted, resolvable reference to a local file
type FileRef struct {
	path  string
	token string
}

// bookmark is the payload carried inside a file token
type bookmark struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	ModTime int64  `json:"modTime"`
}

// NewFileRef builds a reference to path, bookmarking it when the file exists
func NewFileRef(path string) FileRef {
	ref := FileRef{path: path}
	if path == "" || path == PlaceholderFile {
		return ref
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ref
	}
	ref.path = abs
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return ref
	}
	raw, err := json.Marshal(bookmark{Path: abs, Size: info.Size(), ModTime: info.ModTime().Unix()})
	if err != nil {
		return ref
	}
	ref.token = base64.StdEncoding.EncodeToString(raw)
	return ref
}

// FileRefFromToken restores a reference from its token
// A token that cannot be resolved yields the placeholder path instead of an error
func FileRefFromToken(token string) FileRef {
	path, err := resolveToken(token)
	if err != nil {
		return FileRef{path: PlaceholderFile, token: token}
	}
	return FileRef{path: path, token: token}
}

// Path returns the local path the reference points at
func (f FileRef) Path() string {
	if f.path == "" {
		return PlaceholderFile
	}
	return f.path
}

// Token returns the opaque, base64 encoded bookmark
func (f FileRef) Token() string {
	return f.token
}

// IsPlaceholder reports whether no real file is attached
func (f FileRef) IsPlaceholder() bool {
	return f.Path() == PlaceholderFile
}

// Resolve re-reads the bookmark and checks the file is still there
func (f FileRef) Resolve() (string, error) {
	if f.token == "" {
		if f.IsPlaceholder() {
			return "", ErrStaleFile
		}
		if _, err := os.Stat(f.path); err != nil {
			return "", fmt.Errorf("%w: %v", ErrStaleFile, err)
		}
		return f.path, nil
	}
	return resolveToken(f.token)
}

func resolveToken(token string) (string, error) {
	if token == "" {
		return "", ErrStaleFile
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStaleFile, err)
	}
	var b bookmark
	if err := json.Unmarshal(raw, &b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStaleFile, err)
	}
	info, err := os.Stat(b.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStaleFile, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrStaleFile, b.Path)
	}
	return b.Path, nil
}
