/*
Package geo matches trip coordinates to city geography polygons.

Three GeoJSON layers are loaded at startup: census tracts (identified by
GEOID10), council districts (district_n), and the hexagon analysis grid
(id). Each layer gets an R-tree built over feature bounding boxes; a
lookup intersects the tree with the point to collect candidates, then
runs an exact point-in-polygon test against each candidate's full
geometry and returns the first match's identifier.

Startup is strict: all three layers must load and parse or the process
refuses to run. Lookups are the opposite: a point outside every polygon
simply yields an empty identifier, because enrichment must never block
ingestion.
*/
package geo
