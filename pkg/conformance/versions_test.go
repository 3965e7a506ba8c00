package conformance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonex/conformoor/pkg/conformance"
)

func TestParseVersion(t *testing.T) {
	for _, valid := range []string{"V2.0", "V2.1", "V2.2", "V2.3", "V3.0"} {
		v, err := conformance.ParseVersion(valid)
		require.NoError(t, err)
		assert.Equal(t, conformance.Version(valid), v)
	}

	for _, invalid := range []string{"", "V1.0", "v2.3", "2.3"} {
		_, err := conformance.ParseVersion(invalid)
		require.Error(t, err, invalid)
	}
}

func TestSpecFor_VersionFamilies(t *testing.T) {
	// All 2.x versions share the V2 behavior bundle.
	for _, v := range conformance.AllV2 {
		spec, ok := conformance.SpecFor(v)
		require.True(t, ok)
		assert.Equal(t, "/2/footprints", spec.FootprintsPath)
		assert.Equal(t, "/2/events", spec.EventsPath)
	}

	spec, ok := conformance.SpecFor(conformance.V3_0)
	require.True(t, ok)
	assert.Equal(t, "/3/footprints", spec.FootprintsPath)
	assert.Equal(t, "/3/events", spec.EventsPath)

	_, ok = conformance.SpecFor(conformance.Version("V9.9"))
	assert.False(t, ok)
}

func TestVersionSpec_Classify(t *testing.T) {
	v2, _ := conformance.SpecFor(conformance.V2_3)
	v3, _ := conformance.SpecFor(conformance.V3_0)

	assert.Equal(t, conformance.EventFulfilled,
		v2.Classify("org.wbcsd.pathfinder.ProductFootprintRequest.Fulfilled.v1"))
	assert.Equal(t, conformance.EventRejected,
		v2.Classify("org.wbcsd.pathfinder.ProductFootprintRequest.Rejected.v1"))
	assert.Equal(t, conformance.EventUnknown,
		v2.Classify("org.wbcsd.pathfinder.ProductFootprintRequest.Created.v1"))

	assert.Equal(t, conformance.EventFulfilled,
		v3.Classify("org.wbcsd.pact.RequestFulfilledEvent.3"))
	assert.Equal(t, conformance.EventRejected,
		v3.Classify("org.wbcsd.pact.RequestRejectedEvent.3"))

	// Type strings do not cross version families.
	assert.Equal(t, conformance.EventUnknown,
		v3.Classify("org.wbcsd.pathfinder.ProductFootprintRequest.Fulfilled.v1"))
}
