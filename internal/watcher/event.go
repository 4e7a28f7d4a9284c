package watcher

import "github.com/fsnotify/fsnotify"

// EventKind is the kind of raw change reported for a directory entry.
type EventKind int

const (
	// KindModify is reported when an entry's content or attributes change.
	KindModify EventKind = iota
	// KindRename is reported when an entry appears, disappears or is renamed.
	KindRename
)

// String returns the string representation of the kind.
func (k EventKind) String() string {
	switch k {
	case KindModify:
		return "modify"
	case KindRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ChangeEvent is a raw notification from one watched directory.
type ChangeEvent struct {
	Kind EventKind
	// Name is the entry name relative to Dir. It is empty when the event
	// concerns the directory itself.
	Name string
	// Dir is the watched directory, relative to the watch root.
	Dir string
}

// kindOf maps an fsnotify operation onto an EventKind.
func kindOf(op fsnotify.Op) EventKind {
	if op.Has(fsnotify.Create) || op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		return KindRename
	}
	return KindModify
}
