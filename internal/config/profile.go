package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ProfileSet 规则档案文件的内容。
type ProfileSet struct {
	Profiles map[string]Profile `yaml:"profiles" toml:"profiles"`
}

// Profile 一个命名的规则包。
type Profile struct {
	Description string                 `yaml:"description,omitempty" toml:"description,omitempty"`
	Default     bool                   `yaml:"default,omitempty" toml:"default,omitempty"`
	Params      map[string]interface{} `yaml:"params,omitempty" toml:"params,omitempty"`
}

// ProfileFile 负责读写档案文件，按扩展名选择 YAML 或 TOML。
type ProfileFile struct {
	path string
	mu   sync.RWMutex
}

func NewProfileFile(path string) *ProfileFile {
	return &ProfileFile{path: path}
}

func (f *ProfileFile) Path() string { return f.path }

func (f *ProfileFile) format() (string, error) {
	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".yaml", ".yml":
		return "yaml", nil
	case ".toml":
		return "toml", nil
	default:
		return "", fmt.Errorf("不支持的档案格式: %s", f.path)
	}
}

// Read 读取档案文件。
func (f *ProfileFile) Read() (*ProfileSet, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	format, err := f.format()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("读取档案失败: %w", err)
	}
	var set ProfileSet
	switch format {
	case "yaml":
		err = yaml.Unmarshal(data, &set)
	case "toml":
		err = toml.Unmarshal(data, &set)
	}
	if err != nil {
		return nil, fmt.Errorf("解析档案 %s 失败: %w", f.path, err)
	}
	if set.Profiles == nil {
		set.Profiles = make(map[string]Profile)
	}
	return &set, nil
}

// Write 先备份再原子替换。
func (f *ProfileFile) Write(set *ProfileSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	format, err := f.format()
	if err != nil {
		return err
	}
	if err := f.backup(); err != nil {
		return fmt.Errorf("备份失败: %w", err)
	}
	var data []byte
	switch format {
	case "yaml":
		data, err = yaml.Marshal(set)
	case "toml":
		data, err = toml.Marshal(set)
	}
	if err != nil {
		return fmt.Errorf("序列化档案失败: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("替换档案文件失败: %w", err)
	}
	return nil
}

func (f *ProfileFile) backupPrefix() string {
	base := filepath.Base(f.path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_"
}

func (f *ProfileFile) backup() error {
	src, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()

	backupDir := filepath.Join(filepath.Dir(f.path), "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return err
	}
	stamp := time.Now().Format("20060102_150405.000000")
	backupPath := filepath.Join(backupDir, f.backupPrefix()+stamp+filepath.Ext(f.path))
	dst, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	f.cleanOldBackups(backupDir, 10)
	return nil
}

func (f *ProfileFile) cleanOldBackups(dir string, keep int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	prefix := f.backupPrefix()
	var backups []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), filepath.Ext(f.path)) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	if len(backups) <= keep {
		return
	}
	sort.Strings(backups)
	for i := 0; i < len(backups)-keep; i++ {
		os.Remove(backups[i])
	}
}

// Settings 解析指定档案；name 为空时取 default 标记的档案。
func (f *ProfileFile) Settings(name string) (Settings, string, error) {
	set, err := f.Read()
	if err != nil {
		return Settings{}, "", err
	}
	if name == "" {
		name = set.DefaultName()
	}
	p, ok := set.Profiles[name]
	if !ok {
		return Settings{}, "", fmt.Errorf("档案 '%s' 不存在", name)
	}
	s, err := FromParams(p.Params)
	if err != nil {
		return Settings{}, "", fmt.Errorf("档案 '%s': %w", name, err)
	}
	return s, name, nil
}

// DefaultName 返回 default 档案名；没有时按字母序取第一个。
func (s *ProfileSet) DefaultName() string {
	names := make([]string, 0, len(s.Profiles))
	for name, p := range s.Profiles {
		if p.Default {
			return name
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}

// UpdateProfile 新增或覆盖档案，写入前校验参数。
func (f *ProfileFile) UpdateProfile(name string, p Profile) error {
	if _, err := FromParams(p.Params); err != nil {
		return err
	}
	set, err := f.Read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		set = &ProfileSet{Profiles: make(map[string]Profile)}
	}
	set.Profiles[name] = p
	return f.Write(set)
}

// DeleteProfile 删除档案，不能删除唯一的档案。
func (f *ProfileFile) DeleteProfile(name string) error {
	set, err := f.Read()
	if err != nil {
		return err
	}
	if _, ok := set.Profiles[name]; !ok {
		return fmt.Errorf("档案 '%s' 不存在", name)
	}
	if len(set.Profiles) <= 1 {
		return fmt.Errorf("不能删除唯一的档案")
	}
	delete(set.Profiles, name)
	return f.Write(set)
}
