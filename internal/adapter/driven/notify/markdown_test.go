package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "empty input",
			input:    "",
			contains: nil,
		},
		{
			name:     "bold company name",
			input:    "The digital certificate of **Acme** has expired.",
			contains: []string{"<strong>Acme</strong>"},
		},
		{
			name:     "blockquote detail",
			input:    "Needs attention.\n\n> gateway rejected the certificate",
			contains: []string{"<blockquote>", "gateway rejected the certificate"},
		},
		{
			name:     "script stripped",
			input:    "hello <script>alert(1)</script>",
			contains: []string{"hello"},
			excludes: []string{"<script>"},
		},
		{
			name:     "javascript link neutralised",
			input:    "[renew](javascript:alert(1))",
			excludes: []string{"javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderMarkdown(tt.input)
			if tt.input == "" {
				assert.Empty(t, got)
				return
			}
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, bad := range tt.excludes {
				assert.NotContains(t, got, bad)
			}
		})
	}
}
