// Package config loads the toml configuration shared by cmd/vraftlsd and
// cmd/vraftls-gatewayd, mirroring the decode shape of
// cmd/revad/pkg/config/config.go: the file is parsed with
// github.com/BurntSushi/toml into a raw map[string]interface{}, which is
// then merged into a viper instance so a VRAFTLS_-prefixed environment
// variable can still override any leaf (the older cmd/revad/config/config.go's
// env-override trick), before per-section structs are decoded out of it
// with mapstructure.
package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

var v = newViper()

func newViper() *viper.Viper {
	vp := viper.New()
	vp.SetEnvPrefix("vraftls")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	return vp
}

var filePath string

// SetFile points the loader at path; Read then parses it.
func SetFile(path string) {
	filePath = path
}

// Read parses the file set by SetFile into memory.
func Read() error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var raw map[string]interface{}
	if _, err := toml.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}
	return v.MergeConfigMap(raw)
}

func reGet(prefix string, kv map[string]interface{}) {
	for k, val := range kv {
		if nested, ok := val.(map[string]interface{}); ok {
			reGet(prefix+"."+k, nested)
		} else {
			kv[k] = v.Get(prefix + "." + k)
		}
	}
}

// Get returns the sub-map at key, with any leaf overridden by a matching
// VRAFTLS_-prefixed environment variable.
func Get(key string) map[string]interface{} {
	kv := v.GetStringMap(key)
	reGet(key, kv)
	return kv
}

// Decode decodes the sub-map at key into out via mapstructure.
func Decode(key string, out interface{}) error {
	return mapstructure.Decode(Get(key), out)
}

// NodeConfig is the `[node]` section read by cmd/vraftlsd. Peer addresses
// are deliberately absent here: spec.md §1 treats network transport framing
// (dialing a peer's `/raft/{method}` endpoint) as an external collaborator,
// so this config only describes what the node itself serves.
type NodeConfig struct {
	NodeID      uint64   `mapstructure:"node_id"`
	DataDir     string   `mapstructure:"data_dir"`
	ListenAddr  string   `mapstructure:"listen_addr"`
	Groups      []uint64 `mapstructure:"groups"`
	CORSOrigins []string `mapstructure:"cors_allowed_origins"`
}

// LogConfig is the `[log]` section shared by both binaries.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}
