package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/omok-server/internal/board"
)

const (
	defaultCell = 36
	minCell     = 12
	maxCell     = 96
)

// LastMove marks the most recent placement.
type LastMove struct {
	Row int
	Col int
}

type Options struct {
	CellSize int
	LastMove *LastMove
}

var (
	woodColor       = "#dcb35c"
	gridColor       = "#3b2a14"
	lastMoveColor   = color.NRGBA{R: 214, G: 48, B: 49, A: 230}
	labelColor      = color.NRGBA{R: 59, G: 42, B: 20, A: 255}
	starPoints      = [][2]int{{3, 3}, {3, 11}, {11, 3}, {11, 11}, {7, 7}}
	stoneCache      = map[stoneKey]image.Image{}
	stoneCacheMu    sync.RWMutex
	boardSVGCache   = map[int]image.Image{}
	boardSVGCacheMu sync.RWMutex
)

type stoneKey struct {
	stone board.Stone
	size  int
}

// BoardPNG draws b with row/column labels and returns PNG bytes.
func BoardPNG(ctx context.Context, b *board.Board, opts Options) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("board is nil")
	}
	cell := opts.CellSize
	if cell == 0 {
		cell = defaultCell
	}
	if cell < minCell || cell > maxCell {
		return nil, fmt.Errorf("cell size %d outside %d..%d", cell, minCell, maxCell)
	}

	background, err := boardImage(cell)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(background.Bounds())
	imagedraw.Draw(img, img.Bounds(), background, image.Point{}, imagedraw.Src)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	stoneSize := cell - cell/8
	for row := 0; row < board.Size; row++ {
		for col := 0; col < board.Size; col++ {
			s := b.At(row, col)
			if s == board.Empty {
				continue
			}
			stone, err := stoneImage(s, stoneSize)
			if err != nil {
				return nil, err
			}
			c := intersection(cell, row, col)
			r := image.Rect(c.X-stoneSize/2, c.Y-stoneSize/2, c.X-stoneSize/2+stoneSize, c.Y-stoneSize/2+stoneSize)
			imagedraw.Draw(img, r, stone, image.Point{}, imagedraw.Over)
		}
	}
	if lm := opts.LastMove; lm != nil && board.InBounds(lm.Row, lm.Col) {
		drawDisc(img, intersection(cell, lm.Row, lm.Col), cell/8, lastMoveColor)
	}
	drawLabels(img, cell)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Dimension is the square image edge for a cell size.
func Dimension(cell int) int { return cell * (board.Size + 1) }

func intersection(cell, row, col int) image.Point {
	return image.Point{X: cell + col*cell, Y: cell + row*cell}
}

func boardSVG(cell int) []byte {
	dim := Dimension(cell)
	first, last := cell, cell*board.Size
	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, dim, dim, dim, dim)
	fmt.Fprintf(&sb, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, dim, dim, woodColor)
	for i := 0; i < board.Size; i++ {
		p := cell + i*cell
		fmt.Fprintf(&sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="1.5"/>`, first, p, last, p, gridColor)
		fmt.Fprintf(&sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="1.5"/>`, p, first, p, last, gridColor)
	}
	for _, sp := range starPoints {
		c := intersection(cell, sp[0], sp[1])
		fmt.Fprintf(&sb, `<circle cx="%d" cy="%d" r="%d" fill="%s"/>`, c.X, c.Y, max(2, cell/10), gridColor)
	}
	sb.WriteString(`</svg>`)
	return []byte(sb.String())
}

func stoneSVG(s board.Stone) []byte {
	fill, stroke := "#151515", "#000000"
	if s == board.Second {
		fill, stroke = "#f5f5f0", "#8a8a8a"
	}
	return []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="100" height="100" viewBox="0 0 100 100">` +
		`<circle cx="50" cy="50" r="46" fill="` + fill + `" stroke="` + stroke + `" stroke-width="4"/>` +
		`</svg>`)
}

func boardImage(cell int) (image.Image, error) {
	boardSVGCacheMu.RLock()
	if img, ok := boardSVGCache[cell]; ok {
		boardSVGCacheMu.RUnlock()
		return img, nil
	}
	boardSVGCacheMu.RUnlock()

	dim := Dimension(cell)
	img, err := rasterize(boardSVG(cell), dim)
	if err != nil {
		return nil, fmt.Errorf("board svg: %w", err)
	}
	boardSVGCacheMu.Lock()
	boardSVGCache[cell] = img
	boardSVGCacheMu.Unlock()
	return img, nil
}

func stoneImage(s board.Stone, size int) (image.Image, error) {
	key := stoneKey{stone: s, size: size}
	stoneCacheMu.RLock()
	if img, ok := stoneCache[key]; ok {
		stoneCacheMu.RUnlock()
		return img, nil
	}
	stoneCacheMu.RUnlock()

	img, err := rasterize(stoneSVG(s), size)
	if err != nil {
		return nil, fmt.Errorf("stone svg: %w", err)
	}
	stoneCacheMu.Lock()
	stoneCache[key] = img
	stoneCacheMu.Unlock()
	return img, nil
}

func rasterize(svg []byte, size int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, err
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, imagedraw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

func drawLabels(dst imagedraw.Image, cell int) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(labelColor)}
	ascent := face.Metrics().Ascent.Ceil()
	for i := 0; i < board.Size; i++ {
		label := strconv.Itoa(i)
		p := cell + i*cell
		drawCenteredText(drawer, label, p, cell/2+ascent/2)
		drawCenteredText(drawer, label, cell/2, p+ascent/2)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawDisc(img *image.RGBA, center image.Point, radius int, clr color.Color) {
	if radius <= 0 {
		radius = 1
	}
	rSquared := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > rSquared {
				continue
			}
			p := image.Point{X: center.X + x, Y: center.Y + y}
			if !p.In(img.Bounds()) {
				continue
			}
			img.Set(p.X, p.Y, color.RGBAModel.Convert(over(img.RGBAAt(p.X, p.Y), clr)))
		}
	}
}

// over composites src onto an opaque dst pixel.
func over(dst color.RGBA, src color.Color) color.Color {
	sr, sg, sb, sa := src.RGBA()
	a := float64(sa) / 0xffff
	mix := func(d uint8, s uint32) uint8 {
		return uint8(float64(s>>8) + float64(d)*(1-a))
	}
	return color.RGBA{R: mix(dst.R, sr), G: mix(dst.G, sg), B: mix(dst.B, sb), A: 255}
}
