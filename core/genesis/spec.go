package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	"orderchain/native/orders"
)

// NativeAllocKey is the alloc entry that funds an account's native balance.
const NativeAllocKey = "native"

type GenesisSpec struct {
	GenesisTime string                       `yaml:"genesisTime"`
	ChainID     uint64                       `yaml:"chainId"`
	Tokens      []TokenSpec                  `yaml:"tokens"`
	Alloc       map[string]map[string]string `yaml:"alloc"` // addr -> native|symbol -> amount
	Store       StoreSpec                    `yaml:"store"`

	genesisTimestamp time.Time
	storeConfig      *orders.StoreConfig
}

type TokenSpec struct {
	Symbol        string `yaml:"symbol"`
	Name          string `yaml:"name"`
	Decimals      uint8  `yaml:"decimals"`
	MintAuthority string `yaml:"mintAuthority,omitempty"`
}

type StoreSpec struct {
	Name           string `yaml:"name"`
	Seller         string `yaml:"seller"`
	Reporter       string `yaml:"reporter,omitempty"`
	ReporterNotice string `yaml:"reporterNotice,omitempty"`
	Arbiter        string `yaml:"arbiter,omitempty"`
	ArbiterNotice  string `yaml:"arbiterNotice,omitempty"`
	CancelBlocks   uint64 `yaml:"cancelBlocks"`
	DisputeBlocks  uint64 `yaml:"disputeBlocks"`
	Rail           string `yaml:"rail"`
	Token          string `yaml:"token,omitempty"`
	RoleMode       string `yaml:"roleMode"`
	Workflow       string `yaml:"workflow"`
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates a YAML genesis document. Unknown
// fields are rejected.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// StoreConfig returns the validated store configuration.
func (s *GenesisSpec) StoreConfig() *orders.StoreConfig {
	if s.storeConfig == nil {
		return nil
	}
	cfg := *s.storeConfig
	return &cfg
}

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime
	if s.ChainID == 0 {
		return fmt.Errorf("chainId must be greater than zero")
	}

	tokenSymbols := make(map[string]struct{}, len(s.Tokens))
	for i := range s.Tokens {
		if err := s.Tokens[i].validate(); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		key := strings.ToUpper(strings.TrimSpace(s.Tokens[i].Symbol))
		if key == strings.ToUpper(NativeAllocKey) {
			return fmt.Errorf("tokens[%d]: symbol %q is reserved", i, s.Tokens[i].Symbol)
		}
		if _, exists := tokenSymbols[key]; exists {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, s.Tokens[i].Symbol)
		}
		tokenSymbols[key] = struct{}{}
	}

	accounts := make([]string, 0, len(s.Alloc))
	for account := range s.Alloc {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	seenAccounts := make(map[common.Address]string, len(accounts))
	for _, account := range accounts {
		addr, err := ParseAccount(account)
		if err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		if prev, dup := seenAccounts[addr]; dup {
			return fmt.Errorf("alloc[%q]: same account as %q", account, prev)
		}
		seenAccounts[addr] = account
		for symbol, amount := range s.Alloc[account] {
			if _, err := parseAmountString(amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
			if strings.EqualFold(strings.TrimSpace(symbol), NativeAllocKey) {
				continue
			}
			if _, exists := tokenSymbols[strings.ToUpper(strings.TrimSpace(symbol))]; !exists {
				return fmt.Errorf("alloc[%q][%q]: undefined token", account, symbol)
			}
		}
	}

	cfg, err := s.Store.config()
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if cfg.Rail == orders.RailToken {
		if _, exists := tokenSymbols[strings.ToUpper(cfg.Token)]; !exists {
			return fmt.Errorf("store: token %q is not defined in tokens", cfg.Token)
		}
	}
	s.storeConfig = cfg
	return nil
}

func (s StoreSpec) config() (*orders.StoreConfig, error) {
	seller, err := ParseAccount(s.Seller)
	if err != nil {
		return nil, fmt.Errorf("seller: %w", err)
	}
	reporter, err := parseOptionalAccount(strings.TrimSpace(s.Reporter))
	if err != nil {
		return nil, fmt.Errorf("reporter: %w", err)
	}
	arbiter, err := parseOptionalAccount(strings.TrimSpace(s.Arbiter))
	if err != nil {
		return nil, fmt.Errorf("arbiter: %w", err)
	}
	reporterNotice, err := parseOptionalHex(s.ReporterNotice)
	if err != nil {
		return nil, fmt.Errorf("reporterNotice: %w", err)
	}
	arbiterNotice, err := parseOptionalHex(s.ArbiterNotice)
	if err != nil {
		return nil, fmt.Errorf("arbiterNotice: %w", err)
	}
	rail, err := orders.ParseRailKind(s.Rail)
	if err != nil {
		return nil, err
	}
	roleMode, err := orders.ParseRoleMode(s.RoleMode)
	if err != nil {
		return nil, err
	}
	workflow, err := orders.ParseWorkflow(s.Workflow)
	if err != nil {
		return nil, err
	}
	cfg := &orders.StoreConfig{
		StoreName:      strings.TrimSpace(s.Name),
		Seller:         seller,
		Reporter:       reporter,
		ReporterNotice: reporterNotice,
		Arbiter:        arbiter,
		ArbiterNotice:  arbiterNotice,
		CancelBlocks:   s.CancelBlocks,
		DisputeBlocks:  s.DisputeBlocks,
		Rail:           rail,
		Token:          strings.ToUpper(strings.TrimSpace(s.Token)),
		RoleMode:       roleMode,
		Workflow:       workflow,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (t *TokenSpec) validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name must be provided")
	}
	if t.Decimals > 18 {
		return fmt.Errorf("decimals must be 18 or fewer")
	}
	if strings.TrimSpace(t.MintAuthority) != "" {
		if _, err := ParseAccount(t.MintAuthority); err != nil {
			return fmt.Errorf("mintAuthority: %w", err)
		}
	}
	return nil
}

func parseOptionalHex(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	return hexutil.Decode(trimmed)
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("amount exceeds 256 bits")
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
