// Package playbook 提供静态的执行手册检索能力。
// 手册条目是过去验证过的操作流程摘要，按关键词匹配目标描述，
// 命中的条目会被注入规划提示词作为参考经验。
package playbook

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "AgentMesh/internal/errors"
)

// Provider 定义手册检索的通用接口。
type Provider interface {
	Query(goal string) []Entry
}

// Entry 描述一条可供规划参考的执行手册。
type Entry struct {
	Title    string   `yaml:"title"`
	Summary  string   `yaml:"summary"`
	Keywords []string `yaml:"keywords"`
	Tags     []string `yaml:"tags"`
}

// StaticProvider 基于 YAML 文件提供静态手册检索。
type StaticProvider struct {
	entries    []Entry
	maxResults int
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider 创建静态手册库实例。
func NewStaticProvider(entries []Entry, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		entries:    entries,
		maxResults: maxResults,
	}
}

// LoadStaticProvider 从 YAML 文件加载手册条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "手册文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析手册路径失败")
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取手册文件失败")
	}

	var entries []Entry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析手册文件失败")
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 按关键词与标签对目标描述做简单匹配。
func (p *StaticProvider) Query(goal string) []Entry {
	if p == nil {
		return nil
	}

	goal = strings.ToLower(strings.TrimSpace(goal))

	results := make([]Entry, 0, p.maxResults)
	for _, entry := range p.entries {
		if matches(entry, goal) {
			results = append(results, entry)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

func matches(entry Entry, goal string) bool {
	for _, keyword := range entry.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(goal, normalized) {
			return true
		}
	}
	for _, tag := range entry.Tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if strings.Contains(goal, normalized) {
			return true
		}
	}
	return false
}
