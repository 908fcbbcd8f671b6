package harvest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNonEmpty(t *testing.T) {
	t.Parallel()

	blank := "   "
	value := " 2020-05 "
	require.Nil(t, NonEmpty(nil))
	require.Nil(t, NonEmpty(&blank))
	got := NonEmpty(&value)
	require.NotNil(t, got)
	require.Equal(t, "2020-05", *got)
}

func TestMetadataEmptyAndComplete(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		md       Metadata
		empty    bool
		complete bool
	}{
		{name: "nothing", md: Metadata{}, empty: true},
		{name: "blank strings", md: Metadata{Date: StringPtr(""), Copyright: StringPtr(" ")}, empty: true},
		{name: "date only", md: Metadata{Date: StringPtr("2020-05")}},
		{name: "both", md: Metadata{Date: StringPtr("2020-05"), Copyright: StringPtr("© Google")}, complete: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.empty, tc.md.Empty())
			require.Equal(t, tc.complete, tc.md.Complete())
		})
	}
}

func TestOutcomeMutates(t *testing.T) {
	t.Parallel()

	for _, o := range []Outcome{OutcomeFound, OutcomeEmpty, OutcomeEnriched} {
		require.True(t, o.Mutates(), o)
	}
	for _, o := range []Outcome{OutcomeEmptyRetry, OutcomeError, OutcomePartial, OutcomeNoMetadata} {
		require.False(t, o.Mutates(), o)
	}
}
