package beacon

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ScannerColor defines the colors for one scanner's chart elements.
type ScannerColor struct {
	Beacon  color.NRGBA
	Scanner color.NRGBA
}

// DefaultColors returns distinct colors for up to 5 scanners; assignments
// wrap around for larger fleets.
func DefaultColors() []ScannerColor {
	return []ScannerColor{
		{ // Reference - Blue
			Beacon:  color.NRGBA{100, 149, 237, 255},
			Scanner: color.NRGBA{0, 0, 139, 255},
		},
		{ // Red
			Beacon:  color.NRGBA{255, 99, 71, 255},
			Scanner: color.NRGBA{139, 0, 0, 255},
		},
		{ // Green
			Beacon:  color.NRGBA{144, 238, 144, 255},
			Scanner: color.NRGBA{0, 100, 0, 255},
		},
		{ // Gold
			Beacon:  color.NRGBA{255, 215, 0, 255},
			Scanner: color.NRGBA{184, 134, 11, 255},
		},
		{ // Purple
			Beacon:  color.NRGBA{186, 85, 211, 255},
			Scanner: color.NRGBA{75, 0, 130, 255},
		},
	}
}

// ChartRenderer renders an assembled chart as a top-down PNG: one pixel grid
// over the x/y projection, beacons as small squares, scanners as larger
// circles with id labels.
type ChartRenderer struct {
	World   *WorldMap
	Scale   float64 // world units per pixel (default 8)
	Padding int     // padding around the image in pixels
	Colors  map[int]ScannerColor
}

// NewChartRenderer creates a renderer with default settings. Scanner colors
// are assigned from the default palette in ascending id order.
func NewChartRenderer(w *WorldMap) *ChartRenderer {
	palette := DefaultColors()
	colors := make(map[int]ScannerColor, len(w.Scanners))

	ids := make([]int, 0, len(w.Scanners))
	for _, place := range w.Scanners {
		ids = append(ids, place.ID)
	}
	sort.Ints(ids)
	for i, id := range ids {
		colors[id] = palette[i%len(palette)]
	}

	return &ChartRenderer{
		World:   w,
		Scale:   8.0,
		Padding: 20,
		Colors:  colors,
	}
}

// Render draws the chart into an RGBA image.
func (r *ChartRenderer) Render() *image.RGBA {
	minX, minY, maxX, maxY := r.bounds()

	width := int(float64(maxX-minX)/r.Scale) + 2*r.Padding + 1
	height := int(float64(maxY-minY)/r.Scale) + 2*r.Padding + 1

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, color.RGBA{255, 255, 255, 255})

	toPixel := func(p Position) (int, int) {
		px := int(float64(p.X-minX)/r.Scale) + r.Padding
		// Flip y so larger y renders toward the top of the image.
		py := height - 1 - (int(float64(p.Y-minY)/r.Scale) + r.Padding)
		return px, py
	}

	// Beacons first, scanner markers on top.
	beaconColor := color.RGBA{90, 90, 90, 255}
	for _, b := range r.World.Beacons {
		px, py := toPixel(b)
		drawSquare(img, px, py, 3, beaconColor)
	}

	for _, place := range r.World.Scanners {
		sc := r.Colors[place.ID]
		px, py := toPixel(place.Position)
		drawCircle(img, px, py, 6, nrgbaToRGBA(sc.Scanner))
		drawText(img, px+9, py+4, fmt.Sprintf("S%d", place.ID), color.RGBA{0, 0, 0, 255})
	}

	r.drawLegend(img)
	return img
}

// RenderToFile renders the chart and writes it as a PNG.
func (r *ChartRenderer) RenderToFile(path string) error {
	img := r.Render()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// bounds returns the world-space extent covering beacons and scanners.
func (r *ChartRenderer) bounds() (minX, minY, maxX, maxY int) {
	first := true
	extend := func(p Position) {
		if first {
			minX, maxX = p.X, p.X
			minY, maxY = p.Y, p.Y
			first = false
			return
		}
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	for _, b := range r.World.Beacons {
		extend(b)
	}
	for _, place := range r.World.Scanners {
		extend(place.Position)
	}
	return
}

// drawLegend adds a legend with scanner labels in the top-left corner.
func (r *ChartRenderer) drawLegend(img *image.RGBA) {
	ids := make([]int, 0, len(r.Colors))
	for id := range r.Colors {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	y := 15
	for _, id := range ids {
		sc := r.Colors[id]
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-6, sc.Scanner)
			}
		}
		drawText(img, 28, y+4, fmt.Sprintf("scanner %d", id), color.RGBA{0, 0, 0, 255})
		y += 18
	}
}

func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

// drawCircle draws a filled circle clipped to the image bounds.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawSquare draws a filled square clipped to the image bounds.
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			x, y := cx+dx, cy+dy
			if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
				img.Set(x, y, c)
			}
		}
	}
}

// drawText renders text onto an image at the specified baseline position.
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha.
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}
