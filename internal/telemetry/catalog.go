package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"crossbridge/internal/codepath"
	cberrors "crossbridge/internal/errors"
)

// LoadCatalog reads known elements from a file. A ".json" file holds an
// array of code references ({file_path, class_name, method_name,
// line_number}); anything else holds one code path per line, "#" comments
// allowed.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c := NewCatalog()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		var refs []codepath.Reference
		if err := json.Unmarshal(data, &refs); err != nil {
			return nil, cberrors.NewDeserializationError(path, err)
		}
		for _, ref := range refs {
			c.Add(ref)
		}
		return c, nil
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c.AddCodePath(line)
	}
	return c, nil
}
