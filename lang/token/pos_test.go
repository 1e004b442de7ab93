package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/svmlang/svmc/lang/token"
)

func TestPosRoundTrip(t *testing.T) {
	cases := []struct {
		line, col int
	}{
		{1, 1},
		{10, 1},
		{1, 10},
		{12345, 42},
		{token.MaxLines, token.MaxCols},
	}

	for _, c := range cases {
		p := token.MakePos(c.line, c.col)
		gotLine, gotCol := p.LineCol()
		assert.Equal(t, c.line, gotLine)
		assert.Equal(t, c.col, gotCol)
		assert.True(t, p.IsValid())
	}
}

func TestPosZeroIsInvalid(t *testing.T) {
	var p token.Pos
	assert.False(t, p.IsValid())
}

func TestPositionString(t *testing.T) {
	assert.Equal(t, "-", token.Position{}.String())
	assert.Equal(t, "3:7", token.Position{Line: 3, Col: 7}.String())
	assert.Equal(t, "foo.py:3:7", token.Position{Filename: "foo.py", Line: 3, Col: 7}.String())
}
