package utils

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// FileNameFromURL returns a safe local file name for the last path segment of rawURL.
func FileNameFromURL(rawURL string) string {
	name := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		name = path.Base(parsed.Path)
	}
	return SanitizeFileName(name)
}

func SanitizeFileName(name string) string {
	name = unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if name == "" || name == "." || name == "/" || name == ".." {
		return "download"
	}
	return name
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// CleanTemp removes leftover partial files under dir.
func CleanTemp(dir string) (int, error) {
	tempDir := filepath.Join(dir, TempDirName)
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), PartSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(tempDir, file.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	remaining, err := os.ReadDir(tempDir)
	if err != nil {
		return removed, err
	}
	if len(remaining) == 0 {
		if err := os.Remove(tempDir); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
