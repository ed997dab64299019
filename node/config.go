// Copyright 2014 The go-ethereum Authors
// Copyright 2025 The Basalt Network Authors
// This file is part of the gbasalt library.
//
// The gbasalt library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The gbasalt library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the gbasalt library. If not, see <http://www.gnu.org/licenses/>.

package node

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/naoina/toml"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/consensus/bft"
	"github.com/basalt-network/gbasalt/core"
	"github.com/basalt-network/gbasalt/crypto/bls"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
	"github.com/basalt-network/gbasalt/params"
)

// deniedDataDirs are path prefixes a data directory must never resolve into.
var deniedDataDirs = []string{
	"/etc", "/usr", "/bin", "/sbin", "/var/run",
	"/proc", "/sys", "/boot", "/dev", "/lib",
}

// Config assembles everything a node needs to run.
type Config struct {
	Chain   *params.ChainConfig
	Genesis *core.Genesis

	DataDir  string
	Network  string
	HTTPPort int
	P2PPort  int
	Peers    []string

	// ValidatorIndex selects this node's slot in the genesis validator set;
	// negative means the node observes without voting.
	ValidatorIndex int

	NodeKey ed25519.PrivateKey
	BlsKey  *bls.SecretKey

	// GenesisValidators is the bootstrap set consensus starts from before
	// the first epoch transition.
	GenesisValidators []*bft.ValidatorInfo

	// Broadcaster carries outbound consensus traffic; nil keeps consensus
	// local (single-node networks and tests).
	Broadcaster bft.Broadcaster
}

// configFile is the TOML shape of the on-disk configuration.
type configFile struct {
	Chain           params.ChainConfig `toml:"chain"`
	GenesisAccounts map[string]string  `toml:"genesis_accounts"`
}

// LoadConfigFile reads chain parameters and the genesis allocation from a
// TOML file.
func LoadConfigFile(path string) (*params.ChainConfig, *core.Genesis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var file configFile
	if err := toml.NewDecoder(f).Decode(&file); err != nil {
		return nil, nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	chain := file.Chain
	if err := chain.Sanitize(); err != nil {
		return nil, nil, err
	}
	alloc := make(map[common.Address]*uint256.Int, len(file.GenesisAccounts))
	for addrHex, balanceDec := range file.GenesisAccounts {
		if !common.IsHexAddress(addrHex) {
			return nil, nil, fmt.Errorf("invalid genesis address %q", addrHex)
		}
		balance, ok := new(big.Int).SetString(balanceDec, 10)
		if !ok || balance.Sign() < 0 {
			return nil, nil, fmt.Errorf("invalid genesis balance %q", balanceDec)
		}
		value, overflow := uint256.FromBig(balance)
		if overflow {
			return nil, nil, fmt.Errorf("genesis balance %q overflows 256 bits", balanceDec)
		}
		alloc[common.HexToAddress(addrHex)] = value
	}
	return &chain, &core.Genesis{Config: &chain, Alloc: alloc}, nil
}

// ApplyEnvironment overlays the well-known environment hints onto the
// config: VALIDATOR_INDEX, NETWORK, CHAIN_ID, HTTP_PORT, P2P_PORT, DATA_DIR
// and PEERS (comma-separated host:port).
func (c *Config) ApplyEnvironment() error {
	if v, ok := os.LookupEnv("VALIDATOR_INDEX"); ok {
		idx, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VALIDATOR_INDEX: %w", err)
		}
		c.ValidatorIndex = idx
	}
	if v, ok := os.LookupEnv("NETWORK"); ok {
		c.Network = v
	}
	if v, ok := os.LookupEnv("CHAIN_ID"); ok {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAIN_ID: %w", err)
		}
		c.Chain.ChainID = id
	}
	if v, ok := os.LookupEnv("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.HTTPPort = port
	}
	if v, ok := os.LookupEnv("P2P_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("P2P_PORT: %w", err)
		}
		c.P2PPort = port
	}
	if v, ok := os.LookupEnv("DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := os.LookupEnv("PEERS"); ok && v != "" {
		c.Peers = strings.Split(v, ",")
	}
	return nil
}

// ValidateDataDir refuses system directories as the data dir. An empty data
// dir selects the in-memory store.
func ValidateDataDir(dir string) error {
	if dir == "" {
		return nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	for _, denied := range deniedDataDirs {
		if abs == denied || strings.HasPrefix(abs, denied+string(filepath.Separator)) {
			return fmt.Errorf("data directory %q resolves into %q", dir, denied)
		}
	}
	return nil
}
