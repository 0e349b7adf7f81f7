// Package store provides the persistence collaborators of the trip
// repository. Every backend stores one versioned envelope per vehicle holding
// the full trip list.
package store
