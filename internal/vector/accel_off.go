//go:build !sqlite_vec || !cgo

package vector

// accelIndex is the sqlite-vec sidecar; this build has it compiled out.
// Build with -tags sqlite_vec (cgo enabled) to activate it.
type accelIndex struct{}

func openAccel(libraryPath string, dims int) (*accelIndex, error) {
	return nil, errAccelDisabled
}

func (a *accelIndex) upsert(points []Point) error { return errAccelDisabled }

func (a *accelIndex) search(vector []float32, k int) ([]Hit, error) {
	return nil, errAccelDisabled
}

func (a *accelIndex) deleteByItem(itemID string) error { return errAccelDisabled }

func (a *accelIndex) drop() error { return errAccelDisabled }

func (a *accelIndex) close() error { return nil }
