// Package config loads the node configuration file.
//
// The file is YAML. Every field is optional; missing fields keep the values
// of DefaultConfig. Example:
//
//	data_dir: /var/lib/nimbus
//	backend:
//	  kind: badger
//	gateway:
//	  addr: ":8087"
//	  grpc_addr: ":8088"
//	block_interval: 2s
//	runtime:
//	  max_call_depth: 64
//	  hash_algorithm: ripemd160
//	genesis:
//	  "a1000000...": "1000000"
//	deployments:
//	  "7000000...": token
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/crypto"
	"github.com/fortiblox/X1-Nimbus/pkg/gateway"
	"github.com/fortiblox/X1-Nimbus/pkg/node"
	"github.com/fortiblox/X1-Nimbus/pkg/receipts"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/fortiblox/X1-Nimbus/pkg/watts"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidGenesis    = errors.New("invalid genesis entry")
	ErrInvalidDeployment = errors.New("invalid deployment entry")
)

// Config is the node configuration.
type Config struct {
	// DataDir holds the state backend and the receipt database.
	DataDir string `yaml:"data_dir"`

	Backend  state.BackendConfig `yaml:"backend"`
	Gateway  gateway.Config      `yaml:"gateway"`
	Receipts ReceiptsConfig      `yaml:"receipts"`
	Runtime  RuntimeConfig       `yaml:"runtime"`

	// BlockInterval is how often the dev node advances the block.
	BlockInterval time.Duration `yaml:"block_interval"`

	// Genesis maps addresses to initial balances in decimal.
	Genesis map[string]string `yaml:"genesis"`

	// Deployments maps program addresses to program kinds.
	Deployments map[string]string `yaml:"deployments"`
}

// ReceiptsConfig configures the receipt store.
type ReceiptsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RetainHeights uint64        `yaml:"retain_heights"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// RuntimeConfig configures execution.
type RuntimeConfig struct {
	MaxCallDepth      int              `yaml:"max_call_depth"`
	DefaultWattsLimit uint64           `yaml:"default_watts_limit"`
	HashAlgorithm     crypto.Algorithm `yaml:"hash_algorithm"`
	Schedule          watts.Schedule   `yaml:"schedule"`
}

// DefaultConfig returns the configuration of a local dev node.
func DefaultConfig() Config {
	rc := runtime.DefaultConfig()
	return Config{
		DataDir: "./nimbus-data",
		Backend: state.BackendConfig{Kind: state.BackendBadger, SyncWrites: true},
		Gateway: gateway.DefaultConfig(),
		Receipts: ReceiptsConfig{
			Enabled:       true,
			PruneInterval: time.Hour,
		},
		Runtime: RuntimeConfig{
			MaxCallDepth:      rc.MaxCallDepth,
			DefaultWattsLimit: rc.DefaultWattsLimit,
			HashAlgorithm:     rc.HashAlgorithm,
			Schedule:          rc.Schedule,
		},
		BlockInterval: 2 * time.Second,
	}
}

// Load reads a configuration file on top of DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the parts of the configuration that can't be checked by
// the YAML decoder.
func (c *Config) Validate() error {
	if c.Runtime.MaxCallDepth < 1 {
		return fmt.Errorf("runtime.max_call_depth must be at least 1, got %d", c.Runtime.MaxCallDepth)
	}
	if c.BlockInterval <= 0 {
		return fmt.Errorf("block_interval must be positive, got %s", c.BlockInterval)
	}
	if _, err := c.GenesisAlloc(); err != nil {
		return err
	}
	if _, err := c.DeploymentMap(); err != nil {
		return err
	}
	return nil
}

// RuntimeConfig returns the runtime configuration.
func (c *Config) RuntimeConfig() runtime.Config {
	return runtime.Config{
		MaxCallDepth:      c.Runtime.MaxCallDepth,
		DefaultWattsLimit: c.Runtime.DefaultWattsLimit,
		Schedule:          c.Runtime.Schedule,
		HashAlgorithm:     c.Runtime.HashAlgorithm,
	}
}

// BackendConfig returns the state backend configuration rooted at DataDir
// unless the backend names its own directory.
func (c *Config) BackendConfig() state.BackendConfig {
	bc := c.Backend
	if bc.Dir == "" {
		bc.Dir = c.DataDir
	}
	return bc
}

// ReceiptsStoreConfig returns the receipt store configuration.
func (c *Config) ReceiptsStoreConfig() receipts.Config {
	rc := receipts.DefaultConfig(filepath.Join(c.DataDir, "receipts.db"))
	if c.Receipts.RetainHeights > 0 {
		rc.PruneEnabled = true
		rc.RetainHeights = c.Receipts.RetainHeights
	}
	if c.Receipts.PruneInterval > 0 {
		rc.PruneInterval = c.Receipts.PruneInterval
	}
	return rc
}

// GenesisAlloc parses the genesis balances.
func (c *Config) GenesisAlloc() (map[types.Address]*uint256.Int, error) {
	alloc := make(map[types.Address]*uint256.Int, len(c.Genesis))
	for addr, amount := range c.Genesis {
		a, err := types.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: address %q: %v", ErrInvalidGenesis, addr, err)
		}
		v, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q: %v", ErrInvalidGenesis, amount, err)
		}
		alloc[a] = v
	}
	return alloc, nil
}

// DeploymentMap parses the program deployments.
func (c *Config) DeploymentMap() (map[types.Address]string, error) {
	out := make(map[types.Address]string, len(c.Deployments))
	for addr, kind := range c.Deployments {
		a, err := types.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: address %q: %v", ErrInvalidDeployment, addr, err)
		}
		if a.IsVoid() {
			return nil, fmt.Errorf("%w: void address", ErrInvalidDeployment)
		}
		if kind == "" {
			return nil, fmt.Errorf("%w: %s has no kind", ErrInvalidDeployment, addr)
		}
		out[a] = kind
	}
	return out, nil
}

// NodeConfig builds the configuration of a node that logs to logger.
func (c *Config) NodeConfig(logger zerolog.Logger) (*node.Config, error) {
	alloc, err := c.GenesisAlloc()
	if err != nil {
		return nil, err
	}
	deps, err := c.DeploymentMap()
	if err != nil {
		return nil, err
	}

	nc := node.DefaultConfig()
	nc.DataDir = c.DataDir
	nc.Backend = c.BackendConfig()
	nc.Runtime = c.RuntimeConfig()
	nc.ReceiptsEnabled = c.Receipts.Enabled
	nc.Receipts = c.ReceiptsStoreConfig()
	nc.Gateway = c.Gateway
	nc.BlockInterval = c.BlockInterval
	nc.Genesis = alloc
	nc.Deployments = deps
	nc.Logger = logger
	return &nc, nil
}
