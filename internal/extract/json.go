package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// maxJSONBytes caps how large a JSON file is parsed.
const maxJSONBytes = 8 * 1024 * 1024

// JSONExtractor flattens a JSON document into searchable key/value
// lines ("a.b.c: value").
type JSONExtractor struct{}

// Name implements Extractor.
func (e *JSONExtractor) Name() string { return "json" }

// CanHandle implements Extractor.
func (e *JSONExtractor) CanHandle(path string, head []byte) bool {
	return hasExt(path, "json")
}

// Extract implements Extractor.
func (e *JSONExtractor) Extract(ctx context.Context, path string) (*ExtractedContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxJSONBytes))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrUnsupported, err)
	}

	var lines []string
	flattenJSON("", value, &lines)

	return &ExtractedContent{
		Text:     strings.Join(lines, "\n"),
		Metadata: map[string]string{"format": "json"},
	}, nil
}

// flattenJSON appends one "path: value" line per scalar leaf. Object
// keys are emitted in sorted order so output is deterministic.
func flattenJSON(prefix string, value any, lines *[]string) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(joinJSONPath(prefix, k), v[k], lines)
		}
	case []any:
		for i, item := range v {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), item, lines)
		}
	case string:
		*lines = append(*lines, prefix+": "+v)
	case float64:
		*lines = append(*lines, fmt.Sprintf("%s: %v", prefix, v))
	case bool:
		*lines = append(*lines, fmt.Sprintf("%s: %t", prefix, v))
	case nil:
		*lines = append(*lines, prefix+": null")
	}
}

func joinJSONPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
