// Package sentinel holds infrastructure errors shared by stores and
// collaborator adapters. Callers match them with errors.Is and translate them
// into domain errors.
package sentinel

import "errors"

// ErrNotFound reports that a snapshot, guild or webhook secret does not exist.
var ErrNotFound = errors.New("not found")
