package directive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripAnnotations(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no_markers",
			in:   "// RUN: compile-pass\nprocedure main() {}\n",
			want: "// RUN: compile-pass\nprocedure main() {}\n",
		},
		{
			name: "markers_blanked",
			in:   "# SPEC_COV: a.b\n# ASSEMBLY: lib\nx //~ ERROR E-TYP-1901\n# OUTPUT_PIPELINE: off",
			want: "\n\nx //~ ERROR E-TYP-1901\n",
		},
		{
			name: "crlf_preserved",
			in:   "# SPEC_COV: a\r\nbody\r\n",
			want: "\r\nbody\r\n",
		},
		{
			name: "other_hash_lines_kept",
			in:   "# not a marker\n#SPEC_COV: tight\n",
			want: "# not a marker\n\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, StripAnnotations(tt.in))
		})
	}
}
