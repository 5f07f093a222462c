package catalog_test

import (
	"testing"

	"tend/internal/catalog"
)

func TestSimilarityRatioBounds(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "vpn access", "vpn access", 1.0, 1.0},
		{"both empty", "", "", 1.0, 1.0},
		{"one empty", "vpn", "", 0.0, 0.0},
		{"disjoint", "abc", "xyz", 0.0, 0.0},
		{"near match", "vpn access", "vpn acess", 0.9, 1.0},
		{"prefix overlap", "shared mailbox", "shared mailboxes", 0.9, 1.0},
		{"weak overlap", "printer setup", "parking permit", 0.0, 0.8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := catalog.SimilarityRatio(tc.a, tc.b)
			if got < tc.min || got > tc.max {
				t.Fatalf("SimilarityRatio(%q, %q) = %.3f, want within [%.2f, %.2f]", tc.a, tc.b, got, tc.min, tc.max)
			}
		})
	}
}

func TestSimilarityRatioSymmetric(t *testing.T) {
	a, b := "email distribution list", "email distribution lists"
	if catalog.SimilarityRatio(a, b) != catalog.SimilarityRatio(b, a) {
		t.Fatal("ratio must be symmetric")
	}
}

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"VPN Access", "vpn access"},
		{"  VPN    Access  ", "vpn access"},
		{"VPN Access Request", "vpn access"},
		{"VPN Access Service", "vpn access"},
		{"Printer Setup Form", "printer setup"},
		{"Request", "request"}, // a lone suffix word is kept
		{"Catalog Entry", "catalog"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := catalog.NormalizeName(tc.in); got != tc.want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
