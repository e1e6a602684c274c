package common

import (
	_ "embed"
	"errors"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

//go:embed config.default.yaml
var defaultConfig []byte

// ConfigManager layers configuration sources for a config struct of type
// T: embedded defaults first, then the file named by CONFIG_PATH, then an
// inline JSON document in CONFIG_JSON. Later sources override earlier
// ones key by key.
type ConfigManager[T any] struct {
	kf *koanf.Koanf
}

func NewConfigManager[T any]() (*ConfigManager[T], error) {
	cm := &ConfigManager[T]{kf: koanf.New(".")}

	if err := cm.load(yaml.Parser(), rawbytes.Provider(defaultConfig)); err != nil {
		return nil, err
	}

	if cp := os.Getenv("CONFIG_PATH"); cp != "" {
		parser, err := parserForExt(filepath.Ext(cp))
		if err != nil {
			return nil, err
		}
		if err := cm.load(parser, file.Provider(cp)); err != nil {
			return nil, err
		}
	}

	if cj := os.Getenv("CONFIG_JSON"); cj != "" {
		if err := cm.load(json.Parser(), rawbytes.Provider([]byte(cj))); err != nil {
			log.Error().Err(err).Msg("failed to load config from CONFIG_JSON")
		}
	}

	return cm, nil
}

// GetConfig unmarshals the merged configuration into a fresh T.
func (cm *ConfigManager[T]) GetConfig() T {
	var c T
	if err := cm.kf.UnmarshalWithConf("", &c, koanf.UnmarshalConf{Tag: "key", FlatPaths: false}); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config")
		os.Exit(1)
	}
	return c
}

// Print returns the merged configuration for debug logging.
func (cm *ConfigManager[T]) Print() string {
	return cm.kf.Sprint()
}

func (cm *ConfigManager[T]) load(parser koanf.Parser, provider koanf.Provider) error {
	return cm.kf.Load(provider, parser)
}

func parserForExt(ext string) (koanf.Parser, error) {
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	}
	return nil, errors.New("no config parser for extension " + ext)
}
