package template

import "testing"

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		mapping map[string]string
		extra   map[string]string
		want    string
	}{
		{
			name:    "mapping and extra",
			text:    "@@a - @@b - @@c - @@d",
			mapping: map[string]string{"a": "1", "b": "2", "c": "123"},
			extra:   map[string]string{"d": "ünïcödé ✓"},
			want:    "1 - 2 - 123 - ünïcödé ✓",
		},
		{
			name:    "unknown placeholder kept",
			text:    "@@a-@@b-@@unknown",
			mapping: map[string]string{"a": "X", "b": "Y"},
			want:    "X-Y-@@unknown",
		},
		{
			name:    "extra wins",
			text:    "by @@USER",
			mapping: map[string]string{"USER": "mapping"},
			extra:   map[string]string{"USER": "extra"},
			want:    "by extra",
		},
		{
			name:    "braced",
			text:    "@@{VERSION}_final",
			mapping: map[string]string{"VERSION": "v1.0"},
			want:    "v1.0_final",
		},
		{
			name:    "unbraced name is greedy",
			text:    "@@VERSION_final",
			mapping: map[string]string{"VERSION": "v1.0"},
			want:    "@@VERSION_final",
		},
		{
			name:    "escaped delimiter",
			text:    "mail me @@@@VERSION",
			mapping: map[string]string{"VERSION": "v1.0"},
			want:    "mail me @@VERSION",
		},
		{
			name: "malformed placeholders",
			text: "@@ @@1abc @@{unclosed @@",
			want: "@@ @@1abc @@{unclosed @@",
		},
		{
			name:    "multi-line value",
			text:    "# Log:\n# @@LOG\necho done\n",
			mapping: map[string]string{"LOG": "abc - x: \n Initial commit"},
			want:    "# Log:\n# abc - x: \n Initial commit\necho done\n",
		},
		{
			name: "no placeholders",
			text: "#!/bin/sh\necho hello\n",
			want: "#!/bin/sh\necho hello\n",
		},
		{
			name:    "value containing delimiter is not re-expanded",
			text:    "@@a",
			mapping: map[string]string{"a": "@@b", "b": "no"},
			want:    "@@b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.text, tt.mapping, tt.extra)
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
