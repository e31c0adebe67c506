// Package seeds reads crawl seed lists: one URL per line, blank lines and
// "#" comments ignored.
package seeds

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Read returns the seed URLs in file order without duplicates.
func Read(r io.Reader) ([]string, error) {
	var urls []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read seeds: %w", err)
	}
	return urls, nil
}

// Load reads the seed file at path.
func Load(path string) ([]string, error) {
	// #nosec G304 -- the seed path is operator supplied configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seeds %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}
