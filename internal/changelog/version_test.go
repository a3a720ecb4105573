package changelog

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input      string
		want       string
		unreleased bool
		wantErr    bool
	}{
		"with v":          {input: "v1.2.3", want: "v1.2.3"},
		"without v":       {input: "1.2.3", want: "v1.2.3"},
		"prerelease":      {input: "1.0.2-beta.2", want: "v1.0.2-beta.2"},
		"build metadata":  {input: "1.0.0+abc", want: "v1.0.0+abc"},
		"unreleased":      {input: "Unreleased", want: "Unreleased", unreleased: true},
		"unreleased case": {input: "UNRELEASED", want: "Unreleased", unreleased: true},
		"partial":         {input: "1.2", wantErr: true},
		"garbage":         {input: "next", wantErr: true},
		"leading zero":    {input: "01.2.3", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			v, err := ParseVersion(tt.input)
			if tt.wantErr {
				var verr *VersionError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.input, verr.Input)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
			assert.Equal(t, tt.unreleased, v.IsUnreleased())
		})
	}
}

func TestVersion_CompareAndEqual(t *testing.T) {
	t.Parallel()

	v1 := MustParseVersion("1.0.0")
	v2 := MustParseVersion("v2.0.0")
	pre := MustParseVersion("2.0.0-rc.1")

	assert.Equal(t, -1, v1.Compare(v2))
	assert.Equal(t, 1, v2.Compare(pre))
	assert.Equal(t, 1, Unreleased().Compare(v2))
	assert.Equal(t, -1, v2.Compare(Unreleased()))
	assert.Equal(t, 0, Unreleased().Compare(Version{}))

	assert.True(t, v1.Equal(MustParseVersion("v1.0.0")))
	assert.False(t, v1.Equal(MustParseVersion("1.0.0+meta")))
	assert.False(t, v1.Equal(Unreleased()))
	assert.True(t, Unreleased().Equal(Version{}))
}

func TestSemantic_IsCanonical(t *testing.T) {
	t.Parallel()

	parsed := MustParseVersion("v3.1.4")
	built := Semantic(semver.New(3, 1, 4, "", ""))
	assert.Equal(t, parsed, built)
	assert.Equal(t, Unreleased(), Semantic(nil))
	assert.Equal(t, "3.1.4", built.Semver().String())
}
