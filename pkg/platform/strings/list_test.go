package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "only separators", input: " , ,", want: nil},
		{name: "single origin", input: "https://portal.example", want: []string{"https://portal.example"}},
		{name: "trims and drops blanks", input: "  doctor , nurse,, admin ", want: []string{"doctor", "nurse", "admin"}},
		{name: "keeps first occurrence", input: "admin,auditor,admin", want: []string{"admin", "auditor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.input))
		})
	}
}
