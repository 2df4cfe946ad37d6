package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile 从 YAML 或 JSON 文件加载单个工作流
func LoadFile(path string) (*Config, error) {
	configs, err := LoadAll(path)
	if err != nil {
		return nil, err
	}
	if len(configs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 workflow, found %d", path, len(configs))
	}
	return configs[0], nil
}

// LoadAll 加载文件中的一个或多个工作流（单个对象或列表）
func LoadAll(path string) ([]*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	configs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return configs, nil
}

// Parse 解析 YAML 或 JSON 字节
func Parse(data []byte) ([]*Config, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty workflow document")
	}
	switch trimmed[0] {
	case '[':
		var list []*Config
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode workflow list: %w", err)
		}
		return list, nil
	case '{':
		var single Config
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("decode workflow: %w", err)
		}
		return []*Config{&single}, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(trimmed, &root); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}

	switch doc.Kind {
	case yaml.SequenceNode:
		var list []*Config
		if err := doc.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode workflow list: %w", err)
		}
		return list, nil
	case yaml.MappingNode:
		var single Config
		if err := doc.Decode(&single); err != nil {
			return nil, fmt.Errorf("decode workflow: %w", err)
		}
		return []*Config{&single}, nil
	default:
		return nil, fmt.Errorf("workflow document must be a mapping or a list")
	}
}

// Marshal 以 YAML 输出工作流，供持久化为 DSL 文本
func Marshal(c *Config) ([]byte, error) {
	return yaml.Marshal(c)
}
