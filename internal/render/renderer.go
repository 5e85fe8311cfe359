package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/kapu/fourline-go/internal/board"
)

const (
	cellSize = 72
	margin   = 24
)

var frameColor = color.RGBA{R: 0x1f, G: 0x4e, B: 0x9c, A: 0xff}

// Disc sprites as inline SVG, rasterized once per variant and cached.
const discSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 72 72">` +
	`<circle cx="36" cy="36" r="30" fill="{{fill}}" stroke="{{stroke}}" stroke-width="4"/>` +
	`</svg>`

const winDiscSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 72 72">` +
	`<circle cx="36" cy="36" r="30" fill="{{fill}}" stroke="{{stroke}}" stroke-width="4"/>` +
	`<circle cx="36" cy="36" r="21" fill="none" stroke="#ffffff" stroke-width="5"/>` +
	`</svg>`

type discKey struct {
	token     board.Token
	highlight bool
}

var (
	discCache   = map[discKey]image.Image{}
	discCacheMu sync.RWMutex
)

func discColors(token board.Token) (fill, stroke string) {
	switch token {
	case board.TokenRed:
		return "#e74c3c", "#b93a2e"
	case board.TokenYellow:
		return "#f1c40f", "#c29d0b"
	default:
		return "#f5f6fa", "#16397a"
	}
}

func renderDisc(token board.Token, highlight bool) (image.Image, error) {
	key := discKey{token: token, highlight: highlight}

	discCacheMu.RLock()
	if img, ok := discCache[key]; ok {
		discCacheMu.RUnlock()
		return img, nil
	}
	discCacheMu.RUnlock()

	tpl := discSVG
	if highlight {
		tpl = winDiscSVG
	}
	fill, stroke := discColors(token)
	svg := strings.ReplaceAll(tpl, "{{fill}}", fill)
	svg = strings.ReplaceAll(svg, "{{stroke}}", stroke)

	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse disc svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(cellSize), float64(cellSize))

	img := image.NewRGBA(image.Rect(0, 0, cellSize, cellSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(cellSize, cellSize, img, img.Bounds())
	raster := rasterx.NewDasher(cellSize, cellSize, scanner)
	icon.Draw(raster, 1.0)

	discCacheMu.Lock()
	discCache[key] = img
	discCacheMu.Unlock()

	return img, nil
}

// BoardPNG renders a session board as a PNG snapshot, marking the winning
// run when one is given.
func BoardPNG(b board.Board, winning []board.Coord) ([]byte, error) {
	width := board.Cols*cellSize + margin*2
	height := board.Rows*cellSize + margin*2

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(frameColor), image.Point{}, draw.Src)

	highlighted := make(map[board.Coord]bool, len(winning))
	for _, c := range winning {
		highlighted[c] = true
	}

	for r := 0; r < board.Rows; r++ {
		for c := 0; c < board.Cols; c++ {
			disc, err := renderDisc(b[r][c], highlighted[board.Coord{Row: r, Col: c}])
			if err != nil {
				return nil, err
			}
			at := image.Pt(margin+c*cellSize, margin+r*cellSize)
			draw.Draw(canvas, disc.Bounds().Add(at), disc, image.Point{}, draw.Over)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode board png: %w", err)
	}
	return buf.Bytes(), nil
}
