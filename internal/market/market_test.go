package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/models"
	"tradecore/pkg/retry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		symbol     string
		class      Class
		root       string
		multiplier string
		micro      bool
	}{
		{"ES", ClassFuturesIndex, "ES", "50", false},
		{"ESZ4", ClassFuturesIndex, "ES", "50", false},
		{"ESZ2024", ClassFuturesIndex, "ES", "50", false},
		{"ES1!", ClassFuturesIndex, "ES", "50", false},
		{"MESH25", ClassFuturesIndex, "MES", "5", true},
		{"MNQZ4", ClassFuturesIndex, "MNQ", "2", true},
		{"M2K1!", ClassFuturesIndex, "M2K", "5", true},
		{"CLF5", ClassFuturesEnergy, "CL", "1000", false},
		{"GCQ4", ClassFuturesMetal, "GC", "100", false},
		{"SIU4", ClassFuturesMetal, "SI", "5000", false},
		{"ZNH5", ClassFuturesRates, "ZN", "1000", false},
		{"SPY240315C00500000", ClassOption, "SPY", "100", false},
		{"AAPL", ClassEquity, "AAPL", "1", false},
		{"brk.b", ClassEquity, "BRK.B", "1", false},
		{"BTCUSDT", ClassUnknown, "BTCUSDT", "1", false},
		{"XYZZ4", ClassUnknown, "XYZZ4", "1", false},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			inst := Classify(tt.symbol)
			if inst.Class != tt.class {
				t.Errorf("Class = %s, want %s", inst.Class, tt.class)
			}
			if inst.Root != tt.root {
				t.Errorf("Root = %s, want %s", inst.Root, tt.root)
			}
			if !inst.Multiplier.Equal(decimal.RequireFromString(tt.multiplier)) {
				t.Errorf("Multiplier = %s, want %s", inst.Multiplier, tt.multiplier)
			}
			if inst.Micro != tt.micro {
				t.Errorf("Micro = %v, want %v", inst.Micro, tt.micro)
			}
		})
	}
}

func TestYahooSymbol(t *testing.T) {
	tests := map[string]string{
		"ESZ4": "ES=F",
		"NQ1!": "NQ=F",
		"AAPL": "AAPL",
	}
	for in, want := range tests {
		if got := YahooSymbol(in); got != want {
			t.Errorf("YahooSymbol(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestCommissionTable(t *testing.T) {
	table := DefaultCommissions()

	tests := []struct {
		symbol string
		qty    int
		want   string
	}{
		{"ESZ4", 2, "4.5"},
		{"MNQZ4", 10, "6.2"},
		{"SPY240315C00500000", 3, "1.95"},
		{"AAPL", 100, "0"},
		{"BTCUSDT", 1, "0"},
		{"ESZ4", -2, "4.5"},
	}

	for _, tt := range tests {
		got := table.For(tt.symbol, tt.qty)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("For(%s, %d) = %s, want %s", tt.symbol, tt.qty, got, tt.want)
		}
	}
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(map[string]decimal.Decimal{"ESZ4": decimal.NewFromInt(5000)})

	p, err := src.Price(context.Background(), "ESZ4")
	if err != nil || !p.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("Price = %s, %v", p, err)
	}

	if _, err := src.Price(context.Background(), "NQZ4"); !errors.Is(err, models.ErrPriceUnavailable) {
		t.Errorf("missing price error = %v", err)
	}

	src.Set("NQZ4", decimal.NewFromInt(18000))
	if p, _ := src.Price(context.Background(), "NQZ4"); !p.Equal(decimal.NewFromInt(18000)) {
		t.Errorf("Price after Set = %s", p)
	}
}

func TestYahooSource_MapsFuturesSymbol(t *testing.T) {
	var requested string
	y := &YahooSource{fetch: func(symbol string) (decimal.Decimal, error) {
		requested = symbol
		return decimal.NewFromInt(5010), nil
	}}

	p, err := y.Price(context.Background(), "ESZ4")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if requested != "ES=F" {
		t.Errorf("requested %s, want ES=F", requested)
	}
	if !p.Equal(decimal.NewFromInt(5010)) {
		t.Errorf("Price = %s", p)
	}
}

func TestYahooSource_RetriesTransportErrors(t *testing.T) {
	cfg := retry.NetworkConfig()
	cfg.InitialDelay, cfg.MaxDelay = time.Millisecond, time.Millisecond
	cfg.RetryIf = retryQuote

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"recovers after timeout", []error{errors.New("yahoo quote ES=F: i/o timeout")}, 2, false},
		{"gives up after max attempts", []error{errors.New("reset"), errors.New("reset"), errors.New("reset")}, 3, true},
		{"no price is final", []error{models.ErrPriceUnavailable}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			y := &YahooSource{retry: cfg, fetch: func(string) (decimal.Decimal, error) {
				calls++
				if calls <= len(tt.errs) {
					return decimal.Zero, tt.errs[calls-1]
				}
				return decimal.NewFromInt(5010), nil
			}}

			_, err := y.Price(context.Background(), "ES")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

type countingSource struct {
	calls int
	price decimal.Decimal
}

func (c *countingSource) Price(context.Context, string) (decimal.Decimal, error) {
	c.calls++
	return c.price, nil
}

func TestCachedSource(t *testing.T) {
	upstream := &countingSource{price: decimal.NewFromInt(42)}
	cached, err := NewCachedSource(upstream, 100, time.Minute)
	if err != nil {
		t.Fatalf("NewCachedSource: %v", err)
	}
	defer cached.Close()

	if _, err := cached.Price(context.Background(), "AAPL"); err != nil {
		t.Fatalf("Price: %v", err)
	}
	cached.Wait()

	p, _ := cached.Price(context.Background(), "AAPL")
	if !p.Equal(decimal.NewFromInt(42)) {
		t.Errorf("cached price = %s", p)
	}
	if upstream.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", upstream.calls)
	}

	cached.Invalidate("AAPL")
	cached.Wait()
	cached.Price(context.Background(), "AAPL")
	if upstream.calls != 2 {
		t.Errorf("upstream calls after invalidate = %d, want 2", upstream.calls)
	}
}

func TestChainSource(t *testing.T) {
	manual := NewStaticSource(nil)
	fallback := &countingSource{price: decimal.NewFromInt(7)}
	chain := ChainSource{manual, fallback}

	p, err := chain.Price(context.Background(), "SPY")
	if err != nil || !p.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("fallback price = %s, %v", p, err)
	}

	manual.Set("SPY", decimal.NewFromInt(500))
	if p, _ := chain.Price(context.Background(), "SPY"); !p.Equal(decimal.NewFromInt(500)) {
		t.Errorf("manual price = %s", p)
	}
}
