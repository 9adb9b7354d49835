package node

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/params"
)

// indexFileName is the append-only ledger of "<height> <hex id>" lines
// cmd/kmacoinnode's resume step replays on startup to know how far it had
// synced, the Go counterpart to the original reference's resume
// bookkeeping.
const indexFileName = "block_ids.data"

// shardPath spreads block files across params.DirDepth nested directories
// keyed by the leading bytes of the block's ID, so no single directory
// accumulates one file per block as the chain grows into the millions.
func shardPath(dir string, id common.Hash) string {
	segs := make([]string, 0, params.DirDepth+1)
	for i := 0; i < params.DirDepth; i++ {
		segs = append(segs, hex.EncodeToString(id[i:i+1]))
	}
	segs = append(segs, hex.EncodeToString(id[:])+".blk")
	return filepath.Join(append([]string{dir}, segs...)...)
}

// StoreBlock persists block under cfg.BlockDir(), snappy-compressed, and
// appends its height/id to the resume index. height is the block's
// height within the branch being persisted (ordinarily the active tip's
// chain, not every known fork).
func StoreBlock(cfg *Config, height int, block *objects.Block) error {
	dir := cfg.BlockDir()
	path := shardPath(dir, block.ID())
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	raw := block.Encode(nil)
	compressed := snappy.Encode(nil, raw)
	if err := os.WriteFile(path, compressed, 0644); err != nil {
		return errors.Wrap(err, "node: writing block file")
	}

	idxPath := filepath.Join(dir, indexFileName)
	f, err := os.OpenFile(idxPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "node: opening resume index")
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d %s\n", height, block.ID().Hex())
	return err
}

// LoadBlock reads and decompresses the block with the given ID from
// cfg.BlockDir().
func LoadBlock(cfg *Config, id common.Hash) (*objects.Block, error) {
	path := shardPath(cfg.BlockDir(), id)
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.Wrap(err, "node: decompressing block file")
	}
	blk, rest, err := objects.DecodeBlock(raw)
	if err != nil {
		return nil, errors.Wrap(err, "node: decoding block file")
	}
	if len(rest) != 0 {
		return nil, errors.Errorf("node: trailing bytes in block file %s", path)
	}
	return blk, nil
}

// ResumeEntry is one line of the resume index: the height a block was
// persisted at and its ID.
type ResumeEntry struct {
	Height int
	ID     common.Hash
}

// LoadResumeIndex reads cfg's resume index in order, letting the
// launcher replay every previously persisted block without re-syncing
// from peers. Returns an empty slice, not an error, if no index file
// exists yet (a brand new data directory).
func LoadResumeIndex(cfg *Config) ([]ResumeEntry, error) {
	path := filepath.Join(cfg.BlockDir(), indexFileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []ResumeEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("node: malformed resume index line %q", line)
		}
		height, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, errors.Errorf("node: malformed resume index height %q", parts[0])
		}
		idBytes, err := hex.DecodeString(parts[1])
		if err != nil || len(idBytes) != common.HashSize {
			return nil, errors.Errorf("node: malformed resume index id %q", parts[1])
		}
		entries = append(entries, ResumeEntry{Height: height, ID: common.BytesToHash(idBytes)})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
