// Package api provides the HTTP REST server for the vendor-governance
// portal.
//
// # Overview
//
// The server exposes tenant-scoped CRUD over documents, payments,
// statements, and messages, plus organization and company-group
// administration, vendor relationships, webhook configuration, and a
// dashboard aggregate.
//
// # Authorization
//
// Every protected route is composed through a single policy pipeline:
// identity resolution, then an optional role gate, then mandatory
// tenant-scope validation. Handlers never call authorization checks ad hoc;
// they receive a resolved identity from the request context and apply
// ownership predicates through the pipeline when a concrete resource has
// been loaded. Tenant ids carried in request bodies or path segments are
// re-validated through the same pipeline before use.
//
// # Responses
//
// All endpoints return the uniform JSON envelope from pkg/httputil with a
// stable error code taxonomy. Denials are generic so callers cannot probe
// for the existence of resources in other tenants.
package api
