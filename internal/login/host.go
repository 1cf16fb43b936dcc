package login

import "context"

// EventKind identifies a surface event.
type EventKind int

const (
	EventNavigated EventKind = iota + 1
	EventTitleChanged
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventNavigated:
		return "navigated"
	case EventTitleChanged:
		return "title-changed"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is emitted by a Surface. URL is the page location when the event
// fired; Title is set for EventTitleChanged.
type Event struct {
	Kind  EventKind
	URL   string
	Title string
}

// Cookie is one entry of a surface's cookie jar.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Surface is an interactive browser window.
// Events is closed when the host tears the surface down.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	Events() <-chan Event
	Cookies(ctx context.Context, url string) ([]Cookie, error)
	Close() error
}

// Host creates surfaces.
type Host interface {
	Open(ctx context.Context) (Surface, error)
}
