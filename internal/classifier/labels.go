package classifier

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultLabels is the class order of the bundled potato leaf model.
var DefaultLabels = []string{"Healthy", "Early Blight", "Late Blight"}

// LoadLabels reads one class name per line from path. Blank lines and lines
// starting with '#' are ignored. An empty path returns DefaultLabels.
func LoadLabels(path string) ([]string, error) {
	if path == "" {
		return append([]string(nil), DefaultLabels...), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}
