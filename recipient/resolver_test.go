package recipient

import "testing"

func TestFallbackResolver_Resolve(t *testing.T) {
	resolver := NewFallbackResolver(map[string]string{
		"Dr. Maria Souza": "maria@clinic.example",
		"ACME LTDA":       "billing@acme.example",
	})

	tests := []struct {
		name  string
		query string
		want  string
		ok    bool
	}{
		{"exact match", "Dr. Maria Souza", "maria@clinic.example", true},
		{"case insensitive", "dr. maria souza", "maria@clinic.example", true},
		{"surrounding whitespace", "  ACME LTDA  ", "billing@acme.example", true},
		{"unknown customer", "Unknown Corp", "", false},
		{"empty query", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolver.Resolve(tt.query)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("Resolve(%q) = %q, %v; want %q, %v", tt.query, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFallbackResolver_Empty(t *testing.T) {
	resolver := NewFallbackResolver(nil)
	if _, ok := resolver.Resolve("anyone"); ok {
		t.Fatal("empty resolver must not resolve anything")
	}
}
