// Package geounit resolves city coordinates to sub-national geographic
// units. Cities joined to a county this way can pick up the county's
// social-vulnerability row; cities outside every polygon simply keep an
// empty FIPS and that source stays missing for them.
package geounit

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

// Unit is one county-level geography from the loaded layer.
type Unit struct {
	FIPS string
	Name string

	shape  *geom.MultiPolygon
	bounds *geom.Bounds
}

// Resolver answers point-to-county lookups against a loaded county layer.
type Resolver struct {
	units []Unit
}

// Load reads a Census-TIGER-style county shapefile and builds the lookup
// set. The layer must carry GEOID (5-digit state+county FIPS) and NAME
// attribute fields.
func Load(shpPath string) (*Resolver, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geounit: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	geoidIdx, ok := fieldIdx["geoid"]
	if !ok {
		return nil, eris.Errorf("geounit: GEOID field not found in %s", shpPath)
	}
	nameIdx, hasName := fieldIdx["name"]

	var units []Unit
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()
		poly, isPoly := shape.(*shp.Polygon)
		if !isPoly || poly == nil {
			skipped++
			continue
		}

		fips := strings.TrimSpace(strings.TrimRight(reader.Attribute(geoidIdx), "\x00"))
		if fips == "" {
			skipped++
			continue
		}
		var name string
		if hasName {
			name = strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		}

		mp := multiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}
		units = append(units, Unit{FIPS: fips, Name: name, shape: mp, bounds: mp.Bounds()})
	}

	log := zap.L().With(zap.String("component", "geounit"))
	if skipped > 0 {
		log.Debug("skipped shapefile records", zap.Int("skipped", skipped))
	}
	log.Info("loaded county layer", zap.String("path", shpPath), zap.Int("units", len(units)))

	return &Resolver{units: units}, nil
}

// Resolve returns the unit containing the point. The bounding-box check
// prunes the ring tests; first containing unit wins.
func (r *Resolver) Resolve(lat, lon float64) (Unit, bool) {
	pt := geom.Coord{lon, lat}
	for _, u := range r.units {
		if lon < u.bounds.Min(0) || lon > u.bounds.Max(0) ||
			lat < u.bounds.Min(1) || lat > u.bounds.Max(1) {
			continue
		}
		if contains(u.shape, pt) {
			return u, true
		}
	}
	return Unit{}, false
}

// Match pairs a registry city with its resolution outcome.
type Match struct {
	City     model.City
	FIPS     string
	Name     string
	Resolved bool
}

// ResolveCities resolves every city's coordinates. Cities that already carry
// a FIPS are re-resolved so the report flags stale registry entries.
func (r *Resolver) ResolveCities(cities []model.City) []Match {
	matches := make([]Match, 0, len(cities))
	for _, city := range cities {
		m := Match{City: city}
		if u, ok := r.Resolve(city.Lat, city.Lon); ok {
			m.FIPS = u.FIPS
			m.Name = u.Name
			m.Resolved = true
		}
		matches = append(matches, m)
	}
	return matches
}

func contains(mp *geom.MultiPolygon, p geom.Coord) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		if !xy.IsPointInRing(geom.XY, p, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for j := 1; j < poly.NumLinearRings(); j++ {
			if xy.IsPointInRing(geom.XY, p, poly.LinearRing(j).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// multiPolygon converts a shapefile polygon record. Shapefile outer rings
// wind clockwise; counter-clockwise parts are holes in the polygon opened
// by the preceding outer ring.
func multiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	var cur *geom.Polygon

	flush := func() {
		if cur == nil || cur.NumLinearRings() == 0 {
			return
		}
		if err := mp.Push(cur); err != nil {
			zap.L().Debug("geounit: skipping malformed polygon part", zap.Error(err))
		}
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if len(flat) < 8 {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if cur != nil && xy.IsRingCounterClockwise(geom.XY, flat) {
			if err := cur.Push(ring); err != nil {
				zap.L().Debug("geounit: skipping malformed hole ring", zap.Error(err))
			}
			continue
		}

		flush()
		cur = geom.NewPolygon(geom.XY)
		if err := cur.Push(ring); err != nil {
			zap.L().Debug("geounit: skipping malformed outer ring", zap.Error(err))
			cur = nil
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
