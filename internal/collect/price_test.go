package collect

import "testing"

func TestFindPrice_CurrencyMarked(t *testing.T) {
	cases := []struct {
		text  string
		token string
		value float64
	}{
		{"R$ 12,34", "R$ 12,34", 12.34},
		{"R$12,34", "R$12,34", 12.34},
		{"R$ 1.234,56", "R$ 1.234,56", 1234.56},
		{"Arroz Tipo 1 5kg por R$ 27,90 na promoção", "R$ 27,90", 27.9},
		{"R$ 0,00", "R$ 0,00", 0},
		{"de R$ 9,99 por R$ 7,50", "R$ 9,99", 9.99},
	}

	for _, tc := range cases {
		token, value, found := FindPrice(tc.text)
		if !found {
			t.Fatalf("FindPrice(%q): expected a match", tc.text)
		}
		if token != tc.token {
			t.Errorf("FindPrice(%q): token = %q, want %q", tc.text, token, tc.token)
		}
		if value != tc.value {
			t.Errorf("FindPrice(%q): value = %v, want %v", tc.text, value, tc.value)
		}
	}
}

func TestFindPrice_BareDecimals(t *testing.T) {
	cases := []struct {
		text  string
		value float64
	}{
		{"12,34", 12.34},
		{"12.34", 12.34},
		{"leite 4,10", 4.1},
		{"2 unidades por 10,00", 10},
	}

	for _, tc := range cases {
		_, value, found := FindPrice(tc.text)
		if !found {
			t.Fatalf("FindPrice(%q): expected a match", tc.text)
		}
		if value != tc.value {
			t.Errorf("FindPrice(%q): value = %v, want %v", tc.text, value, tc.value)
		}
	}
}

func TestFindPrice_NoMatch(t *testing.T) {
	for _, text := range []string{
		"",
		"preço imperdível",
		"R$",
		"kg",
		"987",
		"1.234.567",
		"promoção válida até 10/02",
	} {
		if _, _, found := FindPrice(text); found {
			t.Errorf("FindPrice(%q): expected no match", text)
		}
	}
}

func TestParsePrice(t *testing.T) {
	if v, ok := ParsePrice("R$ 5,40"); !ok || v != 5.4 {
		t.Fatalf("ParsePrice = %v, %v; want 5.4, true", v, ok)
	}
	if _, ok := ParsePrice("sem preço"); ok {
		t.Fatal("ParsePrice accepted text with no price")
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.006, 1.01},
		{2.674999, 2.67},
		{0, 0},
		{27.9, 27.9},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
