// Package geo generates sample coordinates inside zone polygons. A zone is
// split into its simple polygons, each polygon is validated and prepared for
// fast point-in-polygon tests, and a regular lattice over its bounding box is
// streamed through the prepared polygon. Only strictly interior points survive.
package geo
