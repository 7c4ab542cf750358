package config

import (
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"tradecore/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Имена адаптеров песочниц по умолчанию
const (
	FuturesSandbox  = "futures_sandbox"
	EquitiesSandbox = "equities_sandbox"
)

// AccountsConfig счета, группы маршрутизации и адаптеры песочниц.
//
// Формат ACCOUNTS_FILE:
//
//	{
//	  "accounts": [{"id": "topstep_50k", "initial_balance": "50000",
//	                "funded_rules": {"max_daily_loss": "1000", "max_contracts": 5, "trailing_drawdown": "2000"}}],
//	  "groups":   {"topstep": "topstep_50k"},
//	  "adapters": [{"name": "futures_sandbox", "base_url": "https://demo.example.com", "api_key": "...", "api_secret": "..."}]
//	}
type AccountsConfig struct {
	Accounts []models.Account `json:"accounts"`
	Groups   map[string]string `json:"groups"`
	Adapters []AdapterConfig   `json:"adapters"`
}

// AdapterConfig подключение к REST песочнице брокера
type AdapterConfig struct {
	Name      string  `json:"name"`
	BaseURL   string  `json:"base_url"`
	APIKey    string  `json:"api_key"`
	APISecret string  `json:"api_secret"`
	Timeout   string  `json:"timeout,omitempty"` // "5s"
	RateLimit float64 `json:"rate_limit,omitempty"`
	Burst     float64 `json:"burst,omitempty"`
}

// TimeoutDuration таймаут запроса; по умолчанию 10с
func (a AdapterConfig) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(a.Timeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}

// LoadAccounts читает ACCOUNTS_FILE; пустой путь - набор по умолчанию
func LoadAccounts(path string) (*AccountsConfig, error) {
	if path == "" {
		return DefaultAccounts(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ACCOUNTS_FILE: %w", err)
	}
	var cfg AccountsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse ACCOUNTS_FILE %s: %w", path, err)
	}
	if cfg.Groups == nil {
		cfg.Groups = map[string]string{}
	}
	cfg.Adapters = append(cfg.Adapters, adaptersFromEnv(cfg.Adapters)...)
	return &cfg, nil
}

// DefaultAccounts симулятор и два демо-счёта под песочницы.
// Песочницы подключаются через FUTURES_SANDBOX_* / EQUITIES_SANDBOX_*;
// без них демо-счета отвечают NoExecutionEngine.
func DefaultAccounts() *AccountsConfig {
	return &AccountsConfig{
		Accounts: []models.Account{
			{ID: "sim", Name: "Simulator", ExecutionMode: models.ExecSimulator,
				InitialBalance: decimal.NewFromInt(100000)},
			{ID: "futures_demo", Name: "Futures demo", ExecutionMode: models.ExecSandbox,
				Adapter: FuturesSandbox, InitialBalance: decimal.NewFromInt(50000)},
			{ID: "equities_paper", Name: "Equities paper", ExecutionMode: models.ExecSandbox,
				Adapter: EquitiesSandbox, InitialBalance: decimal.NewFromInt(100000)},
		},
		Groups: map[string]string{
			"simulator": "sim",
			"futures":   "futures_demo",
			"equities":  "equities_paper",
		},
		Adapters: adaptersFromEnv(nil),
	}
}

// adaptersFromEnv песочницы из переменных окружения, если их нет в файле
func adaptersFromEnv(existing []AdapterConfig) []AdapterConfig {
	declared := make(map[string]bool, len(existing))
	for _, a := range existing {
		declared[a.Name] = true
	}

	var out []AdapterConfig
	for name, prefix := range map[string]string{FuturesSandbox: "FUTURES_SANDBOX", EquitiesSandbox: "EQUITIES_SANDBOX"} {
		url := getEnv(prefix+"_URL", "")
		if url == "" || declared[name] {
			continue
		}
		out = append(out, AdapterConfig{
			Name:      name,
			BaseURL:   url,
			APIKey:    getEnv(prefix+"_KEY", ""),
			APISecret: getEnv(prefix+"_SECRET", ""),
			Timeout:   getEnv(prefix+"_TIMEOUT", ""),
			RateLimit: getEnvAsFloat(prefix+"_RATE_LIMIT", 5),
			Burst:     getEnvAsFloat(prefix+"_BURST", 10),
		})
	}
	return out
}

// Validate проверяет уникальность счетов и ссылки групп
func (a *AccountsConfig) Validate() error {
	if len(a.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	ids := make(map[string]bool, len(a.Accounts))
	for _, acc := range a.Accounts {
		if acc.ID == "" {
			return fmt.Errorf("account id is required")
		}
		if ids[acc.ID] {
			return fmt.Errorf("duplicate account id %q", acc.ID)
		}
		ids[acc.ID] = true
		if !acc.InitialBalance.IsPositive() {
			return fmt.Errorf("account %s: initial_balance must be positive", acc.ID)
		}
		if acc.ExecutionMode != "" && acc.ExecutionMode != models.ExecSandbox &&
			acc.ExecutionMode != models.ExecSimulator && acc.ExecutionMode != models.ExecHybrid {
			return fmt.Errorf("account %s: unknown execution_mode %q", acc.ID, acc.ExecutionMode)
		}
	}

	for group, accountID := range a.Groups {
		if !ids[accountID] {
			return fmt.Errorf("group %s references unknown account %q", group, accountID)
		}
	}

	names := make(map[string]bool, len(a.Adapters))
	for _, ad := range a.Adapters {
		if ad.Name == "" || ad.BaseURL == "" {
			return fmt.Errorf("adapter name and base_url are required")
		}
		if names[ad.Name] {
			return fmt.Errorf("duplicate adapter %q", ad.Name)
		}
		names[ad.Name] = true
	}
	return nil
}
