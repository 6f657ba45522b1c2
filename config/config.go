// Package config loads the daemon's TOML configuration file, in the
// same vein as the teacher's own node config format.
package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// tomlSettings turns off naoina/toml's key normalization, the way the
// teacher's own node config loader configures it: a TOML key must equal a
// field's toml tag exactly, or its Go field name when the field has no tag.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// Config is the full set of daemon tunables.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Listen  ListenConfig  `toml:"listen"`
	Storage StorageConfig `toml:"storage"`
	Shares  SharesConfig  `toml:"shares"`
}

// ServerConfig addresses the central Soulseek server and our identity
// on it.
type ServerConfig struct {
	Address  string `toml:"address"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Room     string `toml:"room"`
}

// ListenConfig controls the inbound peer-connection acceptor.
type ListenConfig struct {
	Port           uint32 `toml:"port"`
	MaxConnections int64  `toml:"max_connections"`
}

// StorageConfig points at the on-disk state backing PeerStore /
// DownloadStore / UploadStore.
type StorageConfig struct {
	DataDir     string `toml:"data_dir"`
	DownloadDir string `toml:"download_dir"`
	CacheBytes  int    `toml:"cache_bytes"`
}

// SharesConfig lists the local directories advertised to peers.
type SharesConfig struct {
	Directories []string `toml:"directories"`
}

// Default returns a config with every tunable set to a sane standalone
// default, to be overridden field-by-field by Load.
func Default() Config {
	return Config{
		Server: ServerConfig{Address: "server.slsknet.org:2242", Room: "nicotine"},
		Listen: ListenConfig{Port: 2234, MaxConnections: 10000},
		Storage: StorageConfig{
			DataDir:     "./slskcored-data",
			DownloadDir: "./downloads",
			CacheBytes:  32 * 1024 * 1024,
		},
	}
}

// Load reads and parses a TOML config file at path, starting from
// Default() so an omitted section keeps its default values.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Server.Username == "" {
		return Config{}, fmt.Errorf("config: server.username is required")
	}
	return cfg, nil
}
