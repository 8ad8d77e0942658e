package render

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/park285/omok-server/internal/board"
)

func TestBoardPNGDrawsStones(t *testing.T) {
	var b board.Board
	require.NoError(t, b.Place(7, 7, board.First))
	require.NoError(t, b.Place(7, 8, board.Second))

	raw, err := BoardPNG(context.Background(), &b, Options{CellSize: 20, LastMove: &LastMove{Row: 7, Col: 8}})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, Dimension(20), img.Bounds().Dx())

	// The black stone centre is dark, the empty wood is not.
	c := intersection(20, 7, 7)
	r, g, bl, _ := img.At(c.X+3, c.Y+3).RGBA()
	require.Less(t, r>>8+g>>8+bl>>8, uint32(150))

	w := intersection(20, 2, 2)
	r, g, bl, _ = img.At(w.X+5, w.Y+5).RGBA()
	require.Greater(t, r>>8+g>>8+bl>>8, uint32(400))

	// Last-move marker is red.
	m := intersection(20, 7, 8)
	r, g, _, _ = img.At(m.X, m.Y).RGBA()
	require.Greater(t, r>>8, g>>8)
}

func TestBoardPNGRejectsBadInput(t *testing.T) {
	_, err := BoardPNG(context.Background(), nil, Options{})
	require.Error(t, err)

	var b board.Board
	_, err = BoardPNG(context.Background(), &b, Options{CellSize: 4})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = BoardPNG(ctx, &b, Options{})
	require.ErrorIs(t, err, context.Canceled)
}
