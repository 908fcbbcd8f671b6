// Package streetview implements the panorama search and metadata clients
// against the Street View web endpoints.
package streetview
