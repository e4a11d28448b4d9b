package node

import "errors"

// Registry and repository errors. Check with errors.Is.
var (
	ErrNodeNotFound   = errors.New("node: not found")
	ErrNodeExists     = errors.New("node: already exists")
	ErrInvalidNodeID  = errors.New("node: invalid node id")
	ErrSensorNotFound = errors.New("node: sensor not found")
)
