// Proof of concept for trip enrichment lookups. Builds an rtree over
// polygon bounding boxes and answers point-in-polygon through orb's
// planar predicates, sized like the production layers: districts,
// census tracts and the hex grid together hold roughly 1500 polygons,
// and every trip asks for two lookups per layer.
package main

import (
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"
)

// Austin-ish bounding box.
const (
	lonMin = -97.95
	lonMax = -97.55
	latMin = 30.10
	latMax = 30.50
)

func main() {
	var (
		cells    = flag.Int("cells", 40, "Grid dimension, cells x cells polygons")
		points   = flag.Int("points", 200000, "Lookup count")
		seed     = flag.Int64("seed", 1, "Point generator seed")
		baseline = flag.Bool("baseline", false, "Also time the unindexed linear scan")
	)
	flag.Parse()

	polys := buildGrid(*cells)
	var tree rtree.RTreeG[int]
	for pos, poly := range polys {
		b := poly.Bound()
		tree.Insert([2]float64{b.Min[0], b.Min[1]}, [2]float64{b.Max[0], b.Max[1]}, pos)
	}
	log.Printf("Indexed %d polygons", len(polys))

	// Sample a little beyond the bbox so a share of lookups misses
	// every polygon, like trips that end outside the city.
	rng := rand.New(rand.NewSource(*seed))
	pts := make([]orb.Point, *points)
	for i := range pts {
		pts[i] = orb.Point{
			lonMin - 0.02 + rng.Float64()*(lonMax-lonMin+0.04),
			latMin - 0.02 + rng.Float64()*(latMax-latMin+0.04),
		}
	}

	lookup := func(pt orb.Point) int {
		hit := -1
		tree.Search([2]float64{pt[0], pt[1]}, [2]float64{pt[0], pt[1]},
			func(_, _ [2]float64, pos int) bool {
				if planar.PolygonContains(polys[pos], pt) {
					hit = pos
					return false
				}
				return true
			})
		return hit
	}

	hits := 0
	start := time.Now()
	for _, pt := range pts {
		if lookup(pt) >= 0 {
			hits++
		}
	}
	elapsed := time.Since(start)
	perSec := float64(len(pts)) / elapsed.Seconds()
	log.Printf("rtree: %d lookups in %v (%.0f ns/lookup, %.0f lookups/s, %d hits)",
		len(pts), elapsed.Round(time.Millisecond),
		float64(elapsed.Nanoseconds())/float64(len(pts)), perSec, hits)
	log.Printf("rtree: supports ~%.0f trips/s at two lookups per trip per layer", perSec/2)

	if !*baseline {
		return
	}

	// The linear scan only gets a slice of the points; at grid sizes
	// matching production it is orders of magnitude behind.
	sample := pts[:len(pts)/10]
	hits = 0
	start = time.Now()
	for _, pt := range sample {
		for _, poly := range polys {
			if planar.PolygonContains(poly, pt) {
				hits++
				break
			}
		}
	}
	elapsed = time.Since(start)
	log.Printf("scan: %d lookups in %v (%.0f ns/lookup, %d hits)",
		len(sample), elapsed.Round(time.Millisecond),
		float64(elapsed.Nanoseconds())/float64(len(sample)), hits)
}

// buildGrid tiles the bounding box with n x n closed rectangles.
func buildGrid(n int) []orb.Polygon {
	dLon := (lonMax - lonMin) / float64(n)
	dLat := (latMax - latMin) / float64(n)

	polys := make([]orb.Polygon, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x0 := lonMin + float64(i)*dLon
			y0 := latMin + float64(j)*dLat
			x1, y1 := x0+dLon, y0+dLat
			polys = append(polys, orb.Polygon{orb.Ring{
				{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
			}})
		}
	}
	return polys
}
