package beacon

import (
	"image/color"
	"image/png"
	"io"
	"math"
	"sort"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer renders an assembled chart as vector graphics. Like the
// raster renderer it draws a top-down x/y projection; the z coordinate is
// dropped. Output scales cleanly at any zoom, which matters for charts that
// span several thousand units.
type VectorRenderer struct {
	World       *WorldMap
	Colors      map[int]ScannerColor
	Scale       float64           // world units per canvas unit
	Padding     float64           // padding in canvas units
	Resolution  canvas.Resolution // resolution for PNG output (default: 300 DPI)
	GridSpacing float64           // grid line spacing in world units; 0 disables
}

// NewVectorRenderer creates a vector renderer with default settings. Scanner
// colors are assigned from the default palette in ascending id order.
func NewVectorRenderer(w *WorldMap) *VectorRenderer {
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

	return &VectorRenderer{
		World:       w,
		Colors:      colors,
		Scale:       10.0,
		Padding:     20.0,
		Resolution:  canvas.DPI(300),
		GridSpacing: 1000.0,
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the chart as an SVG to the provided writer.
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	minX, minY, maxX, maxY := r.worldBounds()

	width := float64(maxX-minX)/r.Scale + 2*r.Padding
	height := float64(maxY-minY)/r.Scale + 2*r.Padding

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, minX, minY, maxX, maxY, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the chart as a PNG to the provided writer.
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	minX, minY, maxX, maxY := r.worldBounds()

	width := float64(maxX-minX)/r.Scale + 2*r.Padding
	height := float64(maxY-minY)/r.Scale + 2*r.Padding

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, minX, minY, maxX, maxY, width, height)

	// Rasterizer implements draw.Image, which embeds image.Image.
	return png.Encode(w, rast)
}

// renderToCanvas renders the chart to a canvas renderer (shared logic for SVG and PNG)
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, minX, minY, maxX, maxY int, width, height float64) {
	// White background.
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p Position) (float64, float64) {
		cx := float64(p.X-minX)/r.Scale + r.Padding
		cy := float64(p.Y-minY)/r.Scale + r.Padding
		return cx, cy
	}

	// Grid lines under everything else.
	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.2
		gridStyle.Dashes = []float64{2.0, 2.0}

		for x := math.Floor(float64(minX)/r.GridSpacing) * r.GridSpacing; x <= float64(maxX); x += r.GridSpacing {
			gridPath := &canvas.Path{}
			x1, y1 := toCanvas(Position{X: int(x), Y: minY})
			x2, y2 := toCanvas(Position{X: int(x), Y: maxY})
			gridPath.MoveTo(x1, y1)
			gridPath.LineTo(x2, y2)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}

		for y := math.Floor(float64(minY)/r.GridSpacing) * r.GridSpacing; y <= float64(maxY); y += r.GridSpacing {
			gridPath := &canvas.Path{}
			x1, y1 := toCanvas(Position{X: minX, Y: int(y)})
			x2, y2 := toCanvas(Position{X: maxX, Y: int(y)})
			gridPath.MoveTo(x1, y1)
			gridPath.LineTo(x2, y2)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
	}

	// Beacons as small filled circles.
	beaconStyle := canvas.DefaultStyle
	beaconStyle.Fill = canvas.Paint{Color: color.RGBA{90, 90, 90, 255}}
	beaconStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	for _, b := range r.World.Beacons {
		cx, cy := toCanvas(b)
		p := canvas.Circle(1.2)
		p = p.Translate(cx, cy)
		renderer.RenderPath(p, beaconStyle, canvas.Identity)
	}

	// Scanners as larger bordered circles, drawn in id order so overlaps are
	// deterministic.
	ids := make([]int, 0, len(r.World.Scanners))
	places := make(map[int]ScannerPlace, len(r.World.Scanners))
	for _, place := range r.World.Scanners {
		ids = append(ids, place.ID)
		places[place.ID] = place
	}
	sort.Ints(ids)

	for _, id := range ids {
		place := places[id]
		sc := r.Colors[id]
		cx, cy := toCanvas(place.Position)

		scannerStyle := canvas.DefaultStyle
		scannerStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(sc.Scanner)}
		scannerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		scannerStyle.StrokeWidth = 0.5

		p := canvas.Circle(3.0)
		p = p.Translate(cx, cy)
		renderer.RenderPath(p, scannerStyle, canvas.Identity)

		// Identifier tag below the marker. Text rendering in tdewolff/canvas
		// requires loading a font face, so the tag carries the scanner's
		// beacon color as its identity instead.
		tagStyle := canvas.DefaultStyle
		tagStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(sc.Beacon)}
		tagStyle.Stroke = canvas.Paint{Color: canvas.Black}
		tagStyle.StrokeWidth = 0.2

		tagWidth := 4.0
		tagHeight := 1.5
		tagPath := canvas.Rectangle(tagWidth, tagHeight)
		tagPath = tagPath.Translate(cx-tagWidth/2, cy-5.5)
		renderer.RenderPath(tagPath, tagStyle, canvas.Identity)
	}
}

func (r *VectorRenderer) worldBounds() (minX, minY, maxX, maxY int) {
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
