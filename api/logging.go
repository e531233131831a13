// File: api/logging.go
// Package api pins the structured logging surface for the runtime.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "github.com/joeycumines/logiface"

// Logger is the structured logger carried by runtime components. A nil
// Logger is valid and disables logging; logiface guards every builder
// method against nil receivers, so call sites never branch on it.
type Logger = *logiface.Logger[logiface.Event]
