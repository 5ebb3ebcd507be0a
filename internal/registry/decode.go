package registry

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

// document is the object form of a registry. Either list may be used.
type document struct {
	Tasks        []schemas.TaskDescriptor `json:"tasks" yaml:"tasks"`
	Environments []schemas.TaskDescriptor `json:"environments" yaml:"environments"`
}

func (d document) all() []schemas.TaskDescriptor {
	return append(d.Tasks, d.Environments...)
}

// Decode parses a registry body. YAML is chosen by content type or by the
// URL's extension; everything else is read as JSON. Both a bare list and an
// object with tasks or environments are accepted.
func Decode(body []byte, contentType, url string) ([]schemas.TaskDescriptor, error) {
	if isYAML(contentType, url) {
		return decodeYAML(body)
	}
	return decodeJSON(body)
}

func isYAML(contentType, url string) bool {
	if strings.Contains(strings.ToLower(contentType), "yaml") {
		return true
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	switch strings.ToLower(path.Ext(url)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func decodeJSON(body []byte) ([]schemas.TaskDescriptor, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty registry document")
	}
	switch trimmed[0] {
	case '[':
		var tasks []schemas.TaskDescriptor
		if err := json.Unmarshal(trimmed, &tasks); err != nil {
			return nil, fmt.Errorf("decoding task list: %w", err)
		}
		return tasks, nil
	case '{':
		var doc document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decoding registry document: %w", err)
		}
		return doc.all(), nil
	}
	return nil, fmt.Errorf("registry document is neither a list nor an object")
}

func decodeYAML(body []byte) ([]schemas.TaskDescriptor, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("decoding yaml registry: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("empty registry document")
	}
	switch node := root.Content[0]; node.Kind {
	case yaml.SequenceNode:
		var tasks []schemas.TaskDescriptor
		if err := node.Decode(&tasks); err != nil {
			return nil, fmt.Errorf("decoding task list: %w", err)
		}
		return tasks, nil
	case yaml.MappingNode:
		var doc document
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding registry document: %w", err)
		}
		return doc.all(), nil
	}
	return nil, fmt.Errorf("registry document is neither a list nor a mapping")
}
