// Command kmacoinnode launches a full node: listener, peer dialer,
// address/block processors, branch builder, broadcaster and, if
// configured, a miner. Flag and command wiring follows cmd/kcn's
// urfave/cli.v1 app-construction pattern in the teacher repo, scaled
// down to this module's much smaller flag surface.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/kma-coin/kmacoin/crypto"
	"github.com/kma-coin/kmacoin/log"
	"github.com/kma-coin/kmacoin/metrics"
	"github.com/kma-coin/kmacoin/node"
	"github.com/kma-coin/kmacoin/p2p"
	"github.com/kma-coin/kmacoin/wire"
	"github.com/kma-coin/kmacoin/work"
)

var (
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the keystore and block store",
		Value: node.DefaultConfig.DataDir,
	}
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML config file; flags override whatever it sets",
	}
	listenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "Listen address for inbound peer connections",
		Value: node.DefaultConfig.ListenAddr,
	}
	publicFlag = cli.StringFlag{
		Name:  "public",
		Usage: "Address advertised to peers; the listener only starts when both --listen and --public are set",
	}
	peersFlag = cli.StringFlag{
		Name:  "peers",
		Usage: "Comma-separated host:port list of bootstrap peer addresses",
	}
	minPeersFlag = cli.IntFlag{
		Name:  "minpeers",
		Usage: "Minimum connected peer count before PeerAdder dials out",
		Value: node.DefaultConfig.MinPeers,
	}
	maxPeersFlag = cli.IntFlag{
		Name:  "maxpeers",
		Usage: "Maximum simultaneously connected peers",
		Value: node.DefaultConfig.MaxPeers,
	}
	passphraseFlag = cli.StringFlag{
		Name:  "passphrase",
		Usage: "Keystore passphrase (prefer KMACOIN_PASSPHRASE over this flag)",
	}
	mineFlag = cli.StringFlag{
		Name:  "mine",
		Usage: "Name of a registered miner module to run (e.g. \"lazy\"); empty disables mining",
	}
	hashRateFlag = cli.IntFlag{
		Name:  "hashrate",
		Usage: "Target hashes/second for the configured miner",
		Value: node.DefaultConfig.HashRate,
	}
	natFlag = cli.BoolFlag{
		Name:  "nat",
		Usage: "Attempt UPnP/NAT-PMP port mapping for --listen's port",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics",
		Usage: "Address to serve Prometheus metrics on; empty disables metrics",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Log verbosity, 0 (error) through 4 (trace)",
		Value: node.DefaultConfig.Verbosity,
	}

	nodeFlags = []cli.Flag{
		dataDirFlag,
		configFlag,
		listenFlag,
		publicFlag,
		peersFlag,
		minPeersFlag,
		maxPeersFlag,
		passphraseFlag,
		mineFlag,
		hashRateFlag,
		natFlag,
		metricsAddrFlag,
		verbosityFlag,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "kmacoinnode"
	app.Usage = "KMA-Coin proof-of-work node"
	app.Flags = nodeFlags
	app.Action = runNode
	app.Commands = []cli.Command{
		{
			Name:   "dumpconfig",
			Usage:  "Write the effective configuration as TOML to stdout or --config",
			Flags:  nodeFlags,
			Action: dumpConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "kmacoinnode:", err)
		os.Exit(1)
	}
}

// configFromContext builds a Config the same way for both the default
// action and the dumpconfig command: start from a TOML file if --config
// names one, then let every explicitly set flag override it.
func configFromContext(ctx *cli.Context) (*node.Config, error) {
	var cfg node.Config
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := node.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = *loaded
	} else {
		cfg = node.DefaultConfig
	}

	if ctx.IsSet(dataDirFlag.Name) {
		cfg.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(listenFlag.Name) {
		cfg.ListenAddr = ctx.String(listenFlag.Name)
	}
	if ctx.IsSet(publicFlag.Name) {
		cfg.PublicAddr = ctx.String(publicFlag.Name)
	}
	if ctx.IsSet(peersFlag.Name) {
		cfg.InitialPeers = splitNonEmpty(ctx.String(peersFlag.Name))
	}
	if ctx.IsSet(minPeersFlag.Name) {
		cfg.MinPeers = ctx.Int(minPeersFlag.Name)
	}
	if ctx.IsSet(maxPeersFlag.Name) {
		cfg.MaxPeers = ctx.Int(maxPeersFlag.Name)
	}
	if ctx.IsSet(mineFlag.Name) {
		cfg.MinerModule = ctx.String(mineFlag.Name)
	}
	if ctx.IsSet(hashRateFlag.Name) {
		cfg.HashRate = ctx.Int(hashRateFlag.Name)
	}
	if ctx.IsSet(natFlag.Name) {
		cfg.EnableNAT = ctx.Bool(natFlag.Name)
	}
	if ctx.IsSet(metricsAddrFlag.Name) {
		cfg.MetricsAddr = ctx.String(metricsAddrFlag.Name)
	}
	if ctx.IsSet(verbosityFlag.Name) {
		cfg.Verbosity = ctx.Int(verbosityFlag.Name)
	}
	if err := cfg.EnsureName(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}
	if path := ctx.String(configFlag.Name); path != "" {
		return node.DumpConfig(path, cfg)
	}
	return toml.NewEncoder(os.Stdout).Encode(cfg)
}

// passphrase resolves the keystore passphrase, preferring the
// KMACOIN_PASSPHRASE environment variable over the --passphrase flag so
// an operator's passphrase doesn't end up in their shell history or a
// process listing.
func passphrase(ctx *cli.Context) string {
	if p := os.Getenv("KMACOIN_PASSPHRASE"); p != "" {
		return p
	}
	return ctx.String(passphraseFlag.Name)
}

// runNode is app.Action: it assembles a Node from cfg, starts every
// worker goroutine, and blocks until SIGINT/SIGTERM.
func runNode(ctx *cli.Context) error {
	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}
	log.SetLevel(log.VerbosityFromInt(cfg.Verbosity))
	nlog := log.Root().New("module", "cmd")

	keyPath := filepath.Join(cfg.KeystoreDir(), "node.key")
	identity, err := node.LoadOrCreateKeystore(keyPath, passphrase(ctx))
	if err != nil {
		return fmt.Errorf("loading keystore: %w", err)
	}

	n := node.New(cfg, identity)
	nlog.Info("node identity", "name", cfg.Name, "pubkey", hex.EncodeToString(crypto.PublicKeyToBytes(n.PubKey)))

	if err := resume(cfg, n); err != nil {
		return fmt.Errorf("replaying resume index: %w", err)
	}
	for _, hostport := range cfg.InitialPeers {
		addr, err := wire.ParseAddress(hostport)
		if err != nil {
			nlog.Warn("skipping unparseable initial peer", "addr", hostport, "err", err.Error())
			continue
		}
		n.AddUnconnectedAddress(addr)
	}

	metrics.Enabled = cfg.MetricsAddr != ""
	if metrics.Enabled {
		go metrics.Serve(cfg.MetricsAddr)
	}

	if cfg.EnableNAT {
		if _, portStr, err := net.SplitHostPort(cfg.ListenAddr); err == nil {
			if port, err := strconv.Atoi(portStr); err == nil {
				go node.MapPort(port)
			}
		}
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go work.AddressProcessor(rootCtx, n)
	go work.BlockProcessor(rootCtx, n)
	go work.BranchBuilder(rootCtx, n)
	go work.Broadcaster(rootCtx, n)
	go p2p.PeerAdder(rootCtx, n)

	if cfg.ListenAddr != "" && cfg.PublicAddr != "" {
		go func() {
			if err := p2p.Listener(rootCtx, n); err != nil {
				nlog.Error("listener stopped", "err", err.Error())
			}
		}()
	}

	if cfg.MinerModule != "" {
		miner, ok := work.NewMiner(cfg.MinerModule, cfg.HashRate)
		if !ok {
			return fmt.Errorf("unknown miner module %q", cfg.MinerModule)
		}
		nlog.Info("mining enabled", "module", cfg.MinerModule, "hashrate", cfg.HashRate)
		go work.Mine(rootCtx, n, miner)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	nlog.Info("shutting down")
	cancel()
	return nil
}

// resume replays every block the last run persisted, in order, so a
// restarted node doesn't have to resync its own chain from peers.
func resume(cfg *node.Config, n *node.Node) error {
	entries, err := node.LoadResumeIndex(cfg)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		blk, err := node.LoadBlock(cfg, entry.ID)
		if err != nil {
			return fmt.Errorf("loading persisted block at height %d: %w", entry.Height, err)
		}
		if _, err := n.AddBlock(blk); err != nil {
			return fmt.Errorf("replaying persisted block at height %d: %w", entry.Height, err)
		}
	}
	return nil
}

