package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeakable(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "verse reference",
			in:   "See Bereshit 1:1 for the opening.",
			want: "See Bereshit chapter 1, verse 1 for the opening.",
		},
		{
			name: "multiple references",
			in:   "Compare 3:16 with 12:7.",
			want: "Compare chapter 3, verse 16 with chapter 12, verse 7.",
		},
		{
			name: "no reference",
			in:   "Shalom, haver.",
			want: "Shalom, haver.",
		},
		{
			name: "not part of a larger number",
			in:   "Psalm 119:105 is a lamp.",
			want: "Psalm chapter 119, verse 105 is a lamp.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Speakable(tt.in))
		})
	}
}
