// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"errors"
	"fmt"
)

// ErrEmptyEvidence signals that retrieval found nothing. Callers use it
// to walk the fallback chain rather than fail the request.
var ErrEmptyEvidence = errors.New("no matching evidence found")

// DimensionMismatchError reports a vector whose width does not match the
// store's embedding dimension. Writes carrying one are rejected whole.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: store expects %d components, got %d", e.Want, e.Got)
}

// IsDimensionMismatch reports whether err is a dimension mismatch.
func IsDimensionMismatch(err error) bool {
	var dm *DimensionMismatchError
	return errors.As(err, &dm)
}
