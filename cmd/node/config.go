package main

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dreamware/nimbusdb/internal/nodeops"
)

// fileConfig mirrors the flags a TOML config file may set, read with
// BurntSushi/toml (the format BeadsLog's formula command already
// reaches for in this pack) and fed into viper as defaults below the
// priority of an explicit flag or NIMBUS_* environment variable.
type fileConfig struct {
	Addr            string `toml:"addr"`
	Seeds           string `toml:"seeds"`
	DataDir         string `toml:"data_dir"`
	ClientListen    string `toml:"client_listen"`
	InternodeListen string `toml:"internode_listen"`
	DebugListen     string `toml:"debug_listen"`
	CertsDir        string `toml:"certs_dir"`
	AuthPassword    string `toml:"auth_password"`
}

func bindConfigFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("addr", "", "this node's own IPv4 address (required)")
	flags.String("seeds", "", "comma-separated list of seed node IPv4 addresses")
	flags.String("data-dir", "./data", "directory the storage engine roots its keyspaces under")
	flags.String("client-listen", ":9042", "address the TLS client listener binds")
	flags.String("internode-listen", ":9142", "address the plaintext internode listener binds")
	flags.String("debug-listen", "127.0.0.1:9143", "address the operator debug HTTP server binds")
	flags.String("certs-dir", "./certs", "directory holding node.crt/node.key for the client listener")
	flags.String("auth-password", "", "the client AUTHENTICATE password")
	flags.String("config", "", "optional TOML config file; flags and NIMBUS_* env vars take precedence over it")

	for _, name := range []string{"addr", "seeds", "data-dir", "client-listen", "internode-listen", "debug-listen", "certs-dir", "auth-password"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// loadConfig resolves a nodeops.Config from (in ascending priority)
// built-in defaults, an optional TOML file, NIMBUS_* environment
// variables, and command-line flags.
func loadConfig(cmd *cobra.Command) (nodeops.Config, error) {
	viper.SetEnvPrefix("NIMBUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nodeops.Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		applyFileDefaults(fc)
	}

	self, err := netip.ParseAddr(viper.GetString("addr"))
	if err != nil {
		return nodeops.Config{}, fmt.Errorf("--addr: %w", err)
	}

	var seeds []netip.Addr
	if raw := viper.GetString("seeds"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nodeops.Config{}, fmt.Errorf("--seeds: %w", err)
			}
			seeds = append(seeds, addr)
		}
	}

	return nodeops.Config{
		Self:            self,
		Seeds:           seeds,
		DataDir:         viper.GetString("data-dir"),
		ClientListen:    viper.GetString("client-listen"),
		InternodeListen: viper.GetString("internode-listen"),
		DebugListen:     viper.GetString("debug-listen"),
		CertsDir:        viper.GetString("certs-dir"),
		AuthPassword:    viper.GetString("auth-password"),
		DialTimeout:     2 * time.Second,
	}, nil
}

func applyFileDefaults(fc fileConfig) {
	defaults := map[string]string{
		"addr":             fc.Addr,
		"seeds":            fc.Seeds,
		"data-dir":         fc.DataDir,
		"client-listen":    fc.ClientListen,
		"internode-listen": fc.InternodeListen,
		"debug-listen":     fc.DebugListen,
		"certs-dir":        fc.CertsDir,
		"auth-password":    fc.AuthPassword,
	}
	for k, v := range defaults {
		if v != "" {
			viper.SetDefault(k, v)
		}
	}
}
