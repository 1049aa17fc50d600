package ghrelease

import (
	"strings"
)

var assetSelectMap = map[string][]string{
	"linuxamd64":   {"linux-amd64", "linux_amd64", "linux-x86_64", "linux-x86-64", "linux_x86_64", "linux_x86-64", "amd64-linux", "x86_64-linux", "x86-64-linux", "amd64_linux", "x86_64_linux", "x86-64_linux"},
	"linuxarm64":   {"linux-arm64", "linux_arm64", "linux-aarch64", "linux_aarch64", "arm64-linux", "aarch64-linux", "arm64_linux", "aarch64_linux"},
	"windowsamd64": {"windows-amd64", "windows_amd64", "windows-x86_64", "windows-x86-64", "windows_x86_64", "windows_x86-64", "amd64-windows", "x86_64-windows", "x86-64-windows", "amd64_windows", "x86_64_windows", "x86-64_windows"},
	"windowsarm64": {"windows-arm64", "windows_arm64", "windows-aarch64", "windows_aarch64", "arm64-windows", "aarch64-windows", "arm64_windows", "aarch64_windows"},
	"darwinamd64":  {"darwin-amd64", "darwin_amd64", "darwin-x86_64", "darwin-x86-64", "darwin_x86_64", "darwin_x86-64", "amd64-darwin", "x86_64-darwin", "x86-64-darwin", "amd64_darwin", "x86_64_darwin", "x86-64_darwin"},
	"darwinarm64":  {"darwin-arm64", "darwin_arm64", "darwin-aarch64", "darwin_aarch64", "arm64-darwin", "aarch64-darwin", "arm64_darwin", "aarch64_darwin"},
}

// Loose OS and arch markers, tried when no exact platform pair matches.
var fallbackOS = map[string][]string{
	"linux":   {"linux", "gnu"},
	"windows": {"windows", "exe"},
	"darwin":  {"darwin", "apple", "macos"},
}

var fallbackArch = map[string][]string{
	"amd64": {"x86-64", "x86_64", "amd64"},
	"arm64": {"arm64", "aarch64"},
}

var ignoredAssets = []string{
	"license", "readme", "changelog", "checksums", "sha256checksum", ".sha256", ".sig", ".pem", ".sbom",
}

type asset struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"browser_download_url"`
}

type release struct {
	TagName string  `json:"tag_name"`
	Assets  []asset `json:"assets"`
}

func ignored(name string) bool {
	for _, marker := range ignoredAssets {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// selectAsset picks the asset for goos/goarch. A non-empty pattern overrides
// platform matching with a case-insensitive substring match.
func selectAsset(assets []asset, goos, goarch, pattern string) (asset, bool) {
	candidates := make([]asset, 0, len(assets))
	for _, a := range assets {
		if !ignored(strings.ToLower(a.Name)) {
			candidates = append(candidates, a)
		}
	}
	if pattern != "" {
		pattern = strings.ToLower(pattern)
		for _, a := range candidates {
			if strings.Contains(strings.ToLower(a.Name), pattern) {
				return a, true
			}
		}
		return asset{}, false
	}
	for _, a := range candidates {
		name := strings.ToLower(a.Name)
		for _, key := range assetSelectMap[goos+goarch] {
			if strings.Contains(name, key) {
				return a, true
			}
		}
	}
	for _, a := range candidates {
		name := strings.ToLower(a.Name)
		if containsAny(name, fallbackOS[goos]) && containsAny(name, fallbackArch[goarch]) {
			return a, true
		}
	}
	return asset{}, false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
