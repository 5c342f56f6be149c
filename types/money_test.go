package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"USD", USD(2999), 2999, "usd", "$29.99"},
		{"EUR", EUR(19900), 19900, "eur", "€199.00"},
		{"GBP", GBP(9900), 9900, "gbp", "£99.00"},
		{"Zero USD", Zero("USD"), 0, "usd", "$0.00"},
		{"Negative", USD(-150), -150, "usd", "$-1.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestParseMajor(t *testing.T) {
	tests := []struct {
		in       string
		currency string
		want     Money
		wantErr  bool
	}{
		{"29.99", "usd", USD(2999), false},
		{"99.99", "USD", USD(9999), false},
		{"0", "usd", USD(0), false},
		{"5.5", "eur", EUR(550), false},
		{"-1.25", "usd", USD(-125), false},
		{"100", "jpy", Money{Amount: 100, Currency: "jpy"}, false},
		{"1.999", "usd", Money{}, true},
		{"1.5", "jpy", Money{}, true},
		{"abc", "usd", Money{}, true},
		{"", "usd", Money{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in+"_"+tt.currency, func(t *testing.T) {
			got, err := ParseMajor(tt.in, tt.currency)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMoneyCmp(t *testing.T) {
	if USD(0).Cmp(USD(2999)) != -1 {
		t.Error("free should sort before pro")
	}
	if USD(9999).Cmp(USD(2999)) != 1 {
		t.Error("enterprise should sort after pro")
	}
	if USD(2999).Cmp(USD(2999)) != 0 {
		t.Error("equal amounts should compare equal")
	}
	if !USD(1).LessThan(USD(2)) {
		t.Error("LessThan: 1 < 2")
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on currency mismatch")
		}
	}()
	USD(100).Cmp(EUR(100))
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(2999))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["display"] != "$29.99" {
		t.Errorf("display: got %v", decoded["display"])
	}
	if decoded["amount"] != float64(2999) {
		t.Errorf("amount: got %v", decoded["amount"])
	}
}
