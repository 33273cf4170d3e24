package beacon

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Chart GeoJSON export: a top-down projection of the assembled map onto the
// x/y plane, with the z coordinate carried in feature properties. Consumers
// (dashboards, QGIS) treat the shared frame as a planar coordinate system.

// WorldMapToFeatureCollection converts an assembled chart into a GeoJSON
// feature collection. Beacon features carry kind=beacon and their depth;
// scanner features carry kind=scanner, the scanner id, orientation, and its
// configured display color when one is known.
func WorldMapToFeatureCollection(w *WorldMap, colors map[int]string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, b := range w.Beacons {
		f := geojson.NewFeature(orb.Point{float64(b.X), float64(b.Y)})
		f.Properties["kind"] = "beacon"
		f.Properties["z"] = b.Z
		fc.Append(f)
	}

	for _, place := range w.Scanners {
		f := geojson.NewFeature(orb.Point{float64(place.Position.X), float64(place.Position.Y)})
		f.Properties["kind"] = "scanner"
		f.Properties["scannerId"] = place.ID
		f.Properties["z"] = place.Position.Z
		f.Properties["orientation"] = place.Pose.Orientation
		f.Properties["reported"] = place.Reported
		if color, ok := colors[place.ID]; ok && color != "" {
			f.Properties["color"] = color
		}
		fc.Append(f)
	}

	return fc
}

// MarshalWorldMapGeoJSON renders a chart as GeoJSON bytes.
func MarshalWorldMapGeoJSON(w *WorldMap, colors map[int]string) ([]byte, error) {
	fc := WorldMapToFeatureCollection(w, colors)
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshaling chart GeoJSON: %w", err)
	}
	return data, nil
}

// ChartBound returns the projected x/y bounding box of the chart, covering
// beacons and scanner positions. The zero bound is returned for an empty
// chart.
func ChartBound(w *WorldMap) orb.Bound {
	var bound orb.Bound
	first := true

	extend := func(p Position) {
		pt := orb.Point{float64(p.X), float64(p.Y)}
		if first {
			bound = orb.Bound{Min: pt, Max: pt}
			first = false
			return
		}
		bound = bound.Extend(pt)
	}

	for _, b := range w.Beacons {
		extend(b)
	}
	for _, place := range w.Scanners {
		extend(place.Position)
	}
	return bound
}
