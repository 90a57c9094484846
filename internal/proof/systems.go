package proof

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SystemDefinitions models the structure of configs/systems.yaml.
type SystemDefinitions struct {
	Systems map[string]SystemDefinition `yaml:"systems"`
}

// SystemDefinition describes a single proof system entry.
type SystemDefinition struct {
	Enabled     bool   `yaml:"enabled"`
	ImageID     string `yaml:"image_id"`
	Description string `yaml:"description"`
}

// LoadSystemDefinitions parses the YAML file containing proof system metadata.
func LoadSystemDefinitions(path string) (SystemDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return SystemDefinitions{Systems: map[string]SystemDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return SystemDefinitions{}, fmt.Errorf("读取证明系统配置失败: %w", err)
	}

	var defs SystemDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return SystemDefinitions{}, fmt.Errorf("解析证明系统配置失败: %w", err)
	}
	if defs.Systems == nil {
		defs.Systems = map[string]SystemDefinition{}
	}
	return defs, nil
}

// Enabled 返回配置中启用的证明系统名称，按字典序排序。
func (d SystemDefinitions) Enabled() []string {
	names := make([]string, 0, len(d.Systems))
	for name, def := range d.Systems {
		if def.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ImageID 解析指定系统绑定的镜像哈希，未配置时返回零哈希。
func (d SystemDefinitions) ImageID(system string) (Hash, error) {
	def, ok := d.Systems[system]
	if !ok || strings.TrimSpace(def.ImageID) == "" {
		return ZeroHash, nil
	}
	return ParseHash(def.ImageID)
}
