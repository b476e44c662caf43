package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		p, i  int
		score int
		level Level
	}{
		{4, 5, 20, Critical},
		{5, 5, 25, Critical},
		{3, 5, 15, High},
		{4, 4, 16, High},
		{2, 4, 8, Medium},
		{3, 4, 12, Medium},
		{2, 2, 4, Low},
		{1, 4, 4, Low},
		{1, 3, 3, Negligible},
		{1, 1, 1, Negligible},
	}
	for _, tc := range tests {
		a, err := Classify(tc.p, tc.i)
		require.NoError(t, err)
		assert.Equal(t, tc.score, a.Score, "%d×%d", tc.p, tc.i)
		assert.Equal(t, tc.level, a.Level, "%d×%d", tc.p, tc.i)
	}
}

func TestClassifyRejectsOutOfScale(t *testing.T) {
	for _, in := range [][2]int{{0, 3}, {6, 3}, {3, 0}, {3, 6}, {-1, -1}} {
		_, err := Classify(in[0], in[1])
		assert.Error(t, err, "%v", in)
	}
}

func TestMatrix(t *testing.T) {
	m := Matrix()
	assert.Equal(t, Negligible, m[0][0].Level)
	assert.Equal(t, Critical, m[4][4].Level)
	assert.Equal(t, Critical, m[3][4].Level)
	assert.Equal(t, Low, m[1][1].Level)
	for p := range m {
		for i := range m[p] {
			assert.Equal(t, (p+1)*(i+1), m[p][i].Score)
		}
	}
}
