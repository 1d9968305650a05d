// Package respool shares expensive resources (model handles, catalog
// connections) between pipeline steps through reference-counted leases.
//
// A resource is loaded at most once no matter how many goroutines ask for
// it concurrently; later acquirers block until the first load settles. The
// resource is evicted, and closed when it implements io.Closer, as soon as
// the last lease is released. Releasing a lease twice is safe.
package respool
