package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
)

// Files writes each transfer to <dir>/.pullq-temp/<id>-<name>.part and
// renames it into <dir>/<name> on commit.
type Files struct {
	dir string
	// serializes picking a free final name
	mu sync.Mutex
}

var _ types.SinkOpener = (*Files)(nil)

func NewFiles(dir string) *Files {
	if dir == "" {
		dir = "."
	}
	return &Files{dir: dir}
}

func (f *Files) Dir() string { return f.dir }

func (f *Files) OpenSink(item types.WorkItem, fileName string) (types.Sink, error) {
	if fileName == "" {
		fileName = utils.FileNameFromURL(item.URL)
	}
	fileName = utils.SanitizeFileName(fileName)
	tempDir := filepath.Join(f.dir, utils.TempDirName)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating temp directory: %w", err)
	}
	partPath := filepath.Join(tempDir, fmt.Sprintf("%d-%s%s", item.ID, fileName, utils.PartSuffix))
	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("error creating part file: %w", err)
	}
	return &fileSink{
		parent:   f,
		file:     file,
		partPath: partPath,
		target:   filepath.Join(f.dir, fileName),
	}, nil
}

func (f *Files) finalize(partPath, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(target); err == nil {
		target = utils.RenewOutputPath(target)
	}
	if err := os.Rename(partPath, target); err != nil {
		return "", fmt.Errorf("error renaming (finalizing) output file: %w", err)
	}
	return target, nil
}

type fileSink struct {
	parent   *Files
	file     *os.File
	partPath string
	target   string
	done     bool
}

func (s *fileSink) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

func (s *fileSink) Commit() (string, error) {
	if s.done {
		return "", errors.New("sink already closed")
	}
	s.done = true
	if err := s.file.Close(); err != nil {
		os.Remove(s.partPath)
		return "", fmt.Errorf("error closing part file: %w", err)
	}
	path, err := s.parent.finalize(s.partPath, s.target)
	if err != nil {
		os.Remove(s.partPath)
		return "", err
	}
	log := utils.GetLogger("sink")
	log.Debug().Str("op", "sink/commit").Msgf("saved %s", path)
	return path, nil
}

func (s *fileSink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	closeErr := s.file.Close()
	if err := os.Remove(s.partPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}
