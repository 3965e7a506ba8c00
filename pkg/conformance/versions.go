package conformance

import (
	"fmt"
)

// Version identifies a footprint-exchange tech spec version.
type Version string

// Supported spec versions.
const (
	V2_0 Version = "V2.0"
	V2_1 Version = "V2.1"
	V2_2 Version = "V2.2"
	V2_3 Version = "V2.3"
	V3_0 Version = "V3.0"
)

// Version groups used for mandatory-version declarations.
var (
	AllV2       = []Version{V2_0, V2_1, V2_2, V2_3}
	AllV3       = []Version{V3_0}
	AllVersions = []Version{V2_0, V2_1, V2_2, V2_3, V3_0}
)

// EventClass is the closed classification of inbound webhook event types.
type EventClass string

// Event classes.
const (
	EventFulfilled EventClass = "fulfilled"
	EventRejected  EventClass = "rejected"
	EventUnknown   EventClass = "unknown"
)

// VersionSpec bundles the version-specific behavior of the protocol:
// URL paths, event type strings, and schema names. Built once; version
// dispatch is a table lookup, never a conditional chain.
type VersionSpec struct {
	// FootprintsPath is the footprint collection endpoint.
	FootprintsPath string

	// EventsPath is the events endpoint. Version families use disjoint
	// URL prefixes, so it doubles as the expected inbound webhook path.
	EventsPath string

	// Event type strings for the async request workflow.
	CreatedEvent   string
	FulfilledEvent string
	RejectedEvent  string

	// Schema registry names.
	FootprintsSchema string
	FootprintSchema  string
	EventSchema      string
}

var v2Spec = VersionSpec{
	FootprintsPath:   "/2/footprints",
	EventsPath:       "/2/events",
	CreatedEvent:     "org.wbcsd.pathfinder.ProductFootprintRequest.Created.v1",
	FulfilledEvent:   "org.wbcsd.pathfinder.ProductFootprintRequest.Fulfilled.v1",
	RejectedEvent:    "org.wbcsd.pathfinder.ProductFootprintRequest.Rejected.v1",
	FootprintsSchema: "v2-footprints",
	FootprintSchema:  "v2-footprint",
	EventSchema:      "v2-event-fulfilled",
}

var v3Spec = VersionSpec{
	FootprintsPath:   "/3/footprints",
	EventsPath:       "/3/events",
	CreatedEvent:     "org.wbcsd.pact.RequestCreatedEvent.3",
	FulfilledEvent:   "org.wbcsd.pact.RequestFulfilledEvent.3",
	RejectedEvent:    "org.wbcsd.pact.RequestRejectedEvent.3",
	FootprintsSchema: "v3-footprints",
	FootprintSchema:  "v3-footprint",
	EventSchema:      "v3-event-fulfilled",
}

var versionSpecs = map[Version]VersionSpec{
	V2_0: v2Spec,
	V2_1: v2Spec,
	V2_2: v2Spec,
	V2_3: v2Spec,
	V3_0: v3Spec,
}

// SpecFor returns the behavior bundle for the given version.
func SpecFor(v Version) (VersionSpec, bool) {
	spec, ok := versionSpecs[v]

	return spec, ok
}

// ParseVersion validates a version string supplied by a caller.
func ParseVersion(s string) (Version, error) {
	v := Version(s)
	if _, ok := versionSpecs[v]; !ok {
		return "", fmt.Errorf("unsupported spec version %q", s)
	}

	return v, nil
}

// Classify maps an inbound event type string to its event class.
func (s VersionSpec) Classify(eventType string) EventClass {
	switch eventType {
	case s.FulfilledEvent:
		return EventFulfilled
	case s.RejectedEvent:
		return EventRejected
	default:
		return EventUnknown
	}
}
