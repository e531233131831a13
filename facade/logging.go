// File: facade/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"github.com/momentics/hioload-fiber/api"
)

// NewLogger builds the runtime's default structured logger: stumpy JSON
// records written to w, filtered at level. The result is shared by every
// component the facade constructs.
func NewLogger(w io.Writer, level logiface.Level) api.Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}
