package indexing

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Source enumerates candidate repository paths under a scan root. The
// returned paths are absolute (joined to root), unordered and may contain
// duplicates or paths that are not repositories.
type Source interface {
	Discover(l *zap.Logger, root string) []string
	// Listed reports whether the source is an explicit project list, which
	// makes it authoritative for pruning the index.
	Listed() bool
}

// NewSource selects the discovery strategy for a run
func NewSource(projectsList string) Source {
	if projectsList != "" {
		return ListFile{Path: projectsList}
	}
	return Recursive{}
}

// ListFile reads one repository path per line, relative to the scan root
type ListFile struct {
	Path string
}

func (s ListFile) Listed() bool { return true }

func (s ListFile) Discover(l *zap.Logger, root string) []string {
	l = l.With(zap.String("projects_list", s.Path))

	f, err := os.Open(s.Path)
	if err != nil {
		l.Error("failed to open projects list", zap.Error(err))
		return nil
	}
	defer f.Close()

	var discovered []string
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line = trimLine(line); line != "" {
			discovered = append(discovered, filepath.Join(root, line))
		}
		if errors.Is(err, io.EOF) {
			return discovered
		}
		if err != nil {
			l.Error("failed to read projects list", zap.Error(err))
			return discovered
		}
	}
}

// trimLine drops the line terminator, either \n or \r\n
func trimLine(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// Recursive walks the scan root depth first. A directory holding a
// packed-refs file is taken as a bare repository and not descended into.
type Recursive struct{}

func (Recursive) Listed() bool { return false }

func (Recursive) Discover(l *zap.Logger, root string) []string {
	var discovered []string

	visited := make(map[string]bool)
	stack := []string{root}

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// symlinked directories are followed, but each only once
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			if visited[real] {
				continue
			}
			visited[real] = true
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			l.Error("failed to enter repository directory", zap.String("path", dir), zap.Error(err))
			continue
		}

		var children []string
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())

			info, err := os.Stat(path)
			if err != nil || !info.IsDir() {
				continue
			}

			if isBareRepository(path) {
				discovered = append(discovered, path)
				continue
			}

			children = append(children, path)
		}

		// pop in directory order
		slices.Reverse(children)
		stack = append(stack, children...)
	}

	return discovered
}

func isBareRepository(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "packed-refs"))
	return err == nil && info.Mode().IsRegular()
}
