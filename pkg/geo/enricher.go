package geo

import (
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"

	"github.com/atd-dts/mds-ingest/pkg/log"
)

// Layer names one of the three geography layers trips are matched against.
type Layer string

const (
	LayerCensusTracts     Layer = "census_tracts"
	LayerCouncilDistricts Layer = "council_districts"
	LayerHexGrid          Layer = "hex_grid"
)

// PropertyKey returns the feature property that identifies a polygon in
// this layer.
func (l Layer) PropertyKey() string {
	switch l {
	case LayerCensusTracts:
		return "GEOID10"
	case LayerCouncilDistricts:
		return "district_n"
	case LayerHexGrid:
		return "id"
	}
	return ""
}

// layerIndex couples a feature collection with an R-tree over feature
// bounding boxes. Tree hits are candidates only; exact containment is
// tested against the full geometry.
type layerIndex struct {
	features []*geojson.Feature
	property string
	tree     rtree.RTreeG[int]
}

func newLayerIndex(path, property string) (*layerIndex, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layer file %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layer file %s: %w", path, err)
	}

	idx := &layerIndex{features: fc.Features, property: property}
	for pos, feature := range fc.Features {
		if feature.Geometry == nil {
			continue
		}
		bound := feature.Geometry.Bound()
		idx.tree.Insert(
			[2]float64{bound.Min[0], bound.Min[1]},
			[2]float64{bound.Max[0], bound.Max[1]},
			pos,
		)
	}
	return idx, nil
}

// lookup returns the identifier property of the first feature containing
// the point, or empty when the point is outside every polygon.
func (idx *layerIndex) lookup(pt orb.Point) string {
	id := ""
	idx.tree.Search([2]float64{pt[0], pt[1]}, [2]float64{pt[0], pt[1]},
		func(_, _ [2]float64, pos int) bool {
			feature := idx.features[pos]
			if !contains(feature.Geometry, pt) {
				return true
			}
			id = formatProperty(feature.Properties[idx.property])
			return false
		})
	return id
}

func contains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	}
	return false
}

// formatProperty renders a polygon identifier as a string. Identifiers
// arrive as strings (census GEOID) or JSON numbers (districts, hex
// cells).
func formatProperty(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Enricher answers which polygon of a layer contains a point. It is
// built once at startup and read-only afterwards, so it is safe to share
// across pipeline workers.
type Enricher struct {
	layers map[Layer]*layerIndex
}

// NewEnricher loads and indexes the three geography layers. All three
// are required; a missing or unparsable layer fails startup.
func NewEnricher(censusPath, districtsPath, hexPath string) (*Enricher, error) {
	paths := []struct {
		layer Layer
		path  string
	}{
		{LayerCensusTracts, censusPath},
		{LayerCouncilDistricts, districtsPath},
		{LayerHexGrid, hexPath},
	}

	e := &Enricher{layers: make(map[Layer]*layerIndex, len(paths))}
	for _, p := range paths {
		if p.path == "" {
			return nil, fmt.Errorf("no file configured for layer %s", p.layer)
		}
		idx, err := newLayerIndex(p.path, p.layer.PropertyKey())
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", p.layer, err)
		}
		e.layers[p.layer] = idx
		logger := log.WithComponent("geo")
		logger.Debug().
			Str("layer", string(p.layer)).
			Int("features", len(idx.features)).
			Msg("layer indexed")
	}
	return e, nil
}

// Lookup returns the identifier of the polygon containing (lon, lat) in
// the given layer. Points outside every polygon, and unknown layers,
// return the empty string; lookups never fail at runtime.
func (e *Enricher) Lookup(lon, lat float64, layer Layer) string {
	idx, ok := e.layers[layer]
	if !ok {
		return ""
	}
	return idx.lookup(orb.Point{lon, lat})
}

// Features returns the number of polygons indexed for a layer.
func (e *Enricher) Features(layer Layer) int {
	idx, ok := e.layers[layer]
	if !ok {
		return 0
	}
	return len(idx.features)
}
