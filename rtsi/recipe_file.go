package rtsi

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadRecipeFile reads variable names from a recipe file: one name per line, blank lines and lines
// starting with '#' are ignored.
func LoadRecipeFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipe file: %w", err)
	}
	defer f.Close()

	var names []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("recipe file %s:%d: duplicate variable %q", path, line, name)
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read recipe file: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("recipe file %s has no variables", path)
	}

	return names, nil
}
