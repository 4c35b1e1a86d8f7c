package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// VoiceOption maps a human label to a provider voice id.
type VoiceOption struct {
	Label    string `toml:"label"`
	ID       string `toml:"id"`
	Provider string `toml:"provider"`
	Locale   string `toml:"locale"`
	Gender   string `toml:"gender"`
}

type voicesFile struct {
	Voices []VoiceOption `toml:"voice"`
}

// DefaultVoices is the built-in Baidu catalog (per codes of the text2audio API).
func DefaultVoices() []VoiceOption {
	return []VoiceOption{
		{Label: "女声", ID: "0", Provider: "baidu", Locale: "zh-CN", Gender: "female"},
		{Label: "男声", ID: "1", Provider: "baidu", Locale: "zh-CN", Gender: "male"},
		{Label: "度逍遥", ID: "3", Provider: "baidu", Locale: "zh-CN", Gender: "male"},
		{Label: "度丫丫", ID: "4", Provider: "baidu", Locale: "zh-CN", Gender: "female"},
		{Label: "marina", ID: "marina", Provider: "yandex", Locale: "ru-RU", Gender: "female"},
		{Label: "alena", ID: "alena", Provider: "yandex", Locale: "ru-RU", Gender: "female"},
		{Label: "filipp", ID: "filipp", Provider: "yandex", Locale: "ru-RU", Gender: "male"},
		{Label: "mock", ID: "mock", Provider: "mock", Locale: "und", Gender: "neutral"},
	}
}

// LoadVoicesFile reads a TOML voice catalog made of [[voice]] tables.
func LoadVoicesFile(path string) ([]VoiceOption, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voices file: %w", err)
	}
	return ParseVoices(data)
}

// ParseVoices decodes a TOML voice catalog.
func ParseVoices(data []byte) ([]VoiceOption, error) {
	var f voicesFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse voices file: %w", err)
	}
	out := make([]VoiceOption, 0, len(f.Voices))
	seen := make(map[string]struct{}, len(f.Voices))
	for i, v := range f.Voices {
		v.Label = strings.TrimSpace(v.Label)
		v.ID = strings.TrimSpace(v.ID)
		v.Provider = strings.ToLower(strings.TrimSpace(v.Provider))
		if v.Label == "" || v.ID == "" || v.Provider == "" {
			return nil, fmt.Errorf("voice %d: label, id and provider are required", i+1)
		}
		key := v.Provider + "/" + v.Label
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("voice %d: duplicate label %q for provider %s", i+1, v.Label, v.Provider)
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("voices file defines no voices")
	}
	return out, nil
}
