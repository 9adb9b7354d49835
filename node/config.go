package node

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-uuid"
	"github.com/naoina/toml"

	"github.com/kma-coin/kmacoin/params"
)

// Config holds every operator-tunable setting, loaded from a TOML file
// the way klaytn's node.Config is loaded by cmd/kcn, with DefaultConfig
// providing the same role as klaytn's node.DefaultConfig.
type Config struct {
	// Name identifies this node in logs. Defaults to a random UUID if left blank, the way an anonymous
	// miner still needs *some* identity to log under.
	Name string

	// DataDir is the root directory block files, the keystore and any
	// other persisted state live under.
	DataDir string

	ListenAddr string

	// PublicAddr is what this node advertises to peers during the
	// role-swap handshake and address gossip; it may differ from
	// ListenAddr behind NAT. Left empty, no listener is started and this
	// node only dials out.
	PublicAddr string

	// InitialPeers seeds the unconnected address pool at bootstrap, the
	// way a freshly launched node with no prior gossip history still
	// finds its first peer.
	InitialPeers []string

	MinPeers int
	MaxPeers int

	// MinerModule selects a registered work.Miner by name. Empty disables
	// mining.
	MinerModule string

	// HashRate paces the reference miner's nonce-attempt loop, in hashes
	// per second.
	HashRate int

	// Verbosity is a 0-4 log level, fed into log.VerbosityFromInt.
	Verbosity int

	// EnableNAT attempts best-effort UPnP/NAT-PMP port mapping for
	// ListenAddr's port.
	EnableNAT bool

	// MetricsAddr, if non-empty, starts a Prometheus exporter on this
	// address.
	MetricsAddr string
}

// DefaultConfig mirrors klaytn's node.DefaultConfig: sensible defaults an
// operator can override field by field before calling New.
var DefaultConfig = Config{
	DataDir:     DefaultDataDir(),
	ListenAddr:  ":30900",
	MinPeers:    4,
	MaxPeers:    16,
	MinerModule: "",
	HashRate:    1000,
	Verbosity:   2,
	EnableNAT:   true,
}

// DefaultDataDir picks an OS-appropriate default data directory, the same
// per-OS branching klaytn's node.DefaultDataDir uses.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".kmacoin")
	}
	switch {
	case os.Getenv("APPDATA") != "":
		return filepath.Join(os.Getenv("APPDATA"), "KMACoin")
	default:
		return filepath.Join(home, ".kmacoin")
	}
}

// EnsureName fills in a random name if Config.Name is empty, so every
// node always has an identity to log under even with a bare-minimum
// config file.
func (c *Config) EnsureName() error {
	if c.Name != "" {
		return nil
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		return err
	}
	c.Name = id
	return nil
}

// LoadConfig reads and decodes a TOML config file at path, starting from
// DefaultConfig so any field the file omits keeps its default.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.EnsureName(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DumpConfig writes cfg to path as TOML, the counterpart to LoadConfig
// used by the `kmacoinnode dumpconfig` CLI subcommand.
func DumpConfig(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// BlockDir returns the directory block files are persisted under.
func (c *Config) BlockDir() string {
	return filepath.Join(c.DataDir, "blocks")
}

// KeystoreDir returns the directory the encrypted private key lives
// under.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keystore")
}

// PeerTimeout and ConnectionTimeout are not operator-tunable; they're
// consensus-adjacent protocol constants, re-exported here only so
// callers configuring a Node don't need a second import of params for
// them.
var (
	PeerTimeout       = params.PeerTimeout
	ConnectionTimeout = params.ConnectionTimeout
)
