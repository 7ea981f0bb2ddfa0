package main

import (
	"strings"

	"github.com/zucenko/ustcchess/model"
)

// render draws the board as text, one letter per chess, upper case for
// camp 1 and lower case for camp 2.
func render(b *model.Board) string {
	var sb strings.Builder
	for _, row := range b.Cells {
		for _, c := range row {
			sb.WriteByte(glyph(c))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func glyph(c *model.Chess) byte {
	if c == nil {
		return '.'
	}
	name := strings.TrimPrefix(strings.TrimPrefix(c.Name, "White "), "Black ")
	if name == "" {
		return '?'
	}
	g := name[0]
	if strings.HasPrefix(name, "Kn") {
		g = 'N'
	}
	g = strings.ToUpper(string(g))[0]
	if c.Camp == 2 {
		g = strings.ToLower(string(g))[0]
	}
	return g
}
