package messages_test

import (
	"testing"

	"github.com/google/uuid"

	"EcoLedger/internal/economy"
	"EcoLedger/internal/messages"
)

func TestFormatAmount_SingularPlural(t *testing.T) {
	f := messages.NewFormatter("Coin", "Coins", "")

	cases := []struct {
		amount float64
		want   string
	}{
		{1, "1.00 Coin"},
		{0, "0.00 Coins"},
		{2.5, "2.50 Coins"},
		{1.01, "1.01 Coins"},
		{1234.567, "1234.57 Coins"},
	}
	for _, tc := range cases {
		if got := f.FormatAmount(tc.amount); got != tc.want {
			t.Errorf("FormatAmount(%v): got %q, want %q", tc.amount, got, tc.want)
		}
	}
}

func TestRender_ReplacesPlaceholders(t *testing.T) {
	got := messages.Render("#%rank% %player% has %amount%", map[string]string{
		"rank":   "1",
		"player": "alice",
		"amount": "500.00 Coins",
	})
	want := "#1 alice has 500.00 Coins"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender_UnknownMarkerLeftIntact(t *testing.T) {
	got := messages.Render("hello %nope%", map[string]string{"player": "x"})
	if got != "hello %nope%" {
		t.Errorf("got %q, want the marker untouched", got)
	}
}

func TestFormatTop(t *testing.T) {
	f := messages.NewFormatter("Coin", "Coins", messages.DefaultTopFormat)
	entries := []economy.LeaderboardEntry{
		{Rank: 1, AccountID: uuid.New(), DisplayName: "alice", Balance: 500},
		{Rank: 2, AccountID: uuid.New(), DisplayName: "bob", Balance: 1},
	}

	lines := f.FormatTop(entries)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != "#1 alice has 500.00 Coins" {
		t.Errorf("line 0: got %q", lines[0])
	}
	if lines[1] != "#2 bob has 1.00 Coin" {
		t.Errorf("line 1: got %q, want singular currency", lines[1])
	}
}

func TestNewFormatter_EmptyTopFormatFallsBack(t *testing.T) {
	f := messages.NewFormatter("Coin", "Coins", "")
	lines := f.FormatTop([]economy.LeaderboardEntry{{Rank: 1, DisplayName: "p", Balance: 2}})
	if lines[0] != "#1 p has 2.00 Coins" {
		t.Errorf("got %q, want the default format applied", lines[0])
	}
}
