//go:build !cgo

package store

import "errors"

// Kuzu is unavailable without cgo.
type Kuzu struct{ Memory }

// OpenKuzu reports that this binary was built without cgo.
func OpenKuzu(string) (*Kuzu, error) {
	return nil, errors.New("kuzu: store requires a cgo build")
}
