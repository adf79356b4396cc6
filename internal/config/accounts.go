package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AccountSeed is one company entry of the accounts file.
type AccountSeed struct {
	Name             string   `mapstructure:"name" yaml:"name"`
	HoldedAPIKey     string   `mapstructure:"holded_api_key" yaml:"holded_api_key"`
	CegidCompanyCode string   `mapstructure:"cegid_company_code" yaml:"cegid_company_code"`
	Mode             string   `mapstructure:"mode" yaml:"mode"`
	DocTypes         []string `mapstructure:"doc_types" yaml:"doc_types"`
	DocumentCounter  int64    `mapstructure:"document_counter" yaml:"document_counter"`
}

type AccountsFile struct {
	Accounts []AccountSeed `mapstructure:"accounts" yaml:"accounts"`
}

type AccountsFileHolder struct {
	current atomic.Value // holds AccountsFile

	mu        sync.Mutex
	listeners []func(AccountsFile)
}

// NewAccountsFileHolder loads the accounts seed file and watches it for changes.
// An empty path yields an empty holder without a watcher.
func NewAccountsFileHolder(cfg Config) (*AccountsFileHolder, error) {
	holder := &AccountsFileHolder{}
	holder.current.Store(AccountsFile{})

	path := strings.TrimSpace(cfg.AccountsFile)
	if path == "" {
		return holder, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var file AccountsFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, err
	}
	if err := ValidateAccountsFile(file); err != nil {
		return nil, err
	}
	holder.current.Store(file)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AccountsFile
		if err := v.Unmarshal(&updated); err != nil {
			log.Printf("[accounts-config] reload failed: %v", err)
			return
		}
		if err := ValidateAccountsFile(updated); err != nil {
			log.Printf("[accounts-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[accounts-config] reloaded from %s", e.Name)
		holder.notify(updated)
	})

	return holder, nil
}

func (h *AccountsFileHolder) Get() AccountsFile {
	return h.current.Load().(AccountsFile)
}

// OnChange registers fn to be called after every successful reload.
func (h *AccountsFileHolder) OnChange(fn func(AccountsFile)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func (h *AccountsFileHolder) notify(file AccountsFile) {
	h.mu.Lock()
	listeners := append([]func(AccountsFile){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(file)
	}
}

func ValidateAccountsFile(file AccountsFile) error {
	seen := make(map[string]struct{}, len(file.Accounts))
	for i, acc := range file.Accounts {
		name := strings.TrimSpace(acc.Name)
		if name == "" {
			return fmt.Errorf("accounts[%d].name cannot be empty", i)
		}
		if strings.TrimSpace(acc.HoldedAPIKey) == "" {
			return fmt.Errorf("accounts[%d].holded_api_key cannot be empty", i)
		}
		if strings.TrimSpace(acc.CegidCompanyCode) == "" {
			return fmt.Errorf("accounts[%d].cegid_company_code cannot be empty", i)
		}
		if len(acc.DocTypes) == 0 {
			return fmt.Errorf("accounts[%d].doc_types cannot be empty", i)
		}
		if _, ok := seen[name]; ok {
			return errors.New("duplicate account name " + name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
