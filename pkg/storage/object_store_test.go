package storage

import "testing"

func TestPublicURL(t *testing.T) {
	cases := []struct {
		base, key, want string
	}{
		{"https://cdn.example.com", "generated/a.png", "https://cdn.example.com/generated/a.png"},
		{"https://cdn.example.com/", "/brand-assets/1/x.png", "https://cdn.example.com/brand-assets/1/x.png"},
		{"https://cdn.example.com/bucket", "a b/c.png", "https://cdn.example.com/bucket/a%20b/c.png"},
	}
	for _, tc := range cases {
		if got := PublicURL(tc.base, tc.key); got != tc.want {
			t.Fatalf("PublicURL(%q, %q) = %q, want %q", tc.base, tc.key, got, tc.want)
		}
	}
}
