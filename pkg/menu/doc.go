// Package menu stores the navigation hierarchy and materializes it into
// trees.
//
// Every projection loads all live rows with one query and links them in
// memory, so building a tree costs one round trip regardless of depth.
// Siblings are ordered by sort ascending with unsorted entries last, then by
// id. Traversal tracks visited nodes, so a corrupted parent chain can never
// loop.
//
// Projections:
//
//	FullTree     every field, optional per-level name filter
//	CatalogTree  {value, label, children} of active CATALOG and MENU entries
//	RouteTree    front-end router entries built from the same rows
//
// Unfiltered top-level projections are cached. Every write deletes them.
package menu
