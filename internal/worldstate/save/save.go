// Package save defines the §6 SaveStorage contract: an async key-value
// upsert of change-form blobs, one call in flight at a time.
package save

import "github.com/riftworld/worldcore/internal/worldstate/form"

// Storage is the SaveStorage contract. Tick delivers any completed
// upsert's callback onto the caller's thread (the tick thread — §5: the
// backend may do its own I/O on worker threads, but completions must be
// posted back and drained here). Upsert must not be called again before
// the previous call's onDone has fired.
type Storage interface {
	Tick()
	Upsert(batch []form.ChangeForm, onDone func())
}
