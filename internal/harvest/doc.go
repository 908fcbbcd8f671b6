// Package harvest defines the domain types and collaborator interfaces shared
// by the sampling, search, and enrichment passes.
package harvest
