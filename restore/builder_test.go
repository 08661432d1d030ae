package restore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/stepherg/gestaltmgr"
	"github.com/stepherg/gestaltmgr/tweak"
)

func testOptions() gestaltmgr.Options { return gestaltmgr.DefaultOptions() }

func TestBuildApplyFlagPayloadAlwaysFirst(t *testing.T) {
	res := tweak.Result{Flags: map[string]interface{}{}}
	tx, err := BuildApply(res, testOptions())
	require.NoError(t, err)

	require.Len(t, tx.Files, 1, "empty merge still carries the flag payload")
	f := tx.Files[0]
	assert.Equal(t, "/var/preferences/FeatureFlags/", f.Path)
	assert.Equal(t, "Global.plist", f.Name)
	assert.NotEmpty(t, f.Contents, "flag document serializes as a complete replacement file")
	assert.True(t, tx.Reboot)

	var decoded map[string]interface{}
	_, err = plist.Unmarshal(f.Contents, &decoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestBuildApplyGestaltFollowsFlags(t *testing.T) {
	res := tweak.Result{
		Flags:   map[string]interface{}{"SpringBoard": map[string]interface{}{"X": true}},
		Gestalt: map[string]interface{}{"CacheExtra": map[string]interface{}{"k": 1}},
	}
	tx, err := BuildApply(res, testOptions())
	require.NoError(t, err)

	require.Len(t, tx.Files, 2)
	assert.Equal(t, "com.apple.MobileGestalt.plist", tx.Files[1].Name)
	assert.Equal(t,
		"/var/containers/Shared/SystemGroup/systemgroup.com.apple.mobilegestaltcache/Library/Caches/",
		tx.Files[1].Path)
}

func TestBuildApplyAppendsFileSetPayloadsInOrder(t *testing.T) {
	res := tweak.Result{
		Flags: map[string]interface{}{},
		Files: []tweak.File{
			{Contents: []byte("a"), Path: "/var/x/", Name: "one"},
			{Contents: []byte("b"), Path: "/var/x/", Name: "two"},
		},
	}
	tx, err := BuildApply(res, testOptions())
	require.NoError(t, err)

	require.Len(t, tx.Files, 3)
	assert.Equal(t, "one", tx.Files[1].Name)
	assert.Equal(t, "two", tx.Files[2].Name)
}

func TestBuildApplyRejectsDuplicateDestination(t *testing.T) {
	res := tweak.Result{
		Flags: map[string]interface{}{},
		Files: []tweak.File{
			{Path: "/var/preferences/FeatureFlags/", Name: "Global.plist"},
		},
	}
	_, err := BuildApply(res, testOptions())
	require.ErrorIs(t, err, gestaltmgr.ErrDuplicateDestination)
}

func TestBuildApplyDeterministic(t *testing.T) {
	res := tweak.Result{
		Flags: map[string]interface{}{
			"SpringBoard": map[string]interface{}{"A": true, "B": false},
			"Photos":      map[string]interface{}{"Lemonade": false},
		},
		Gestalt: map[string]interface{}{
			"CacheExtra": map[string]interface{}{"k1": 1, "k2": "x", "k3": []interface{}{1, 2}},
		},
	}
	tx1, err := BuildApply(res, testOptions())
	require.NoError(t, err)
	tx2, err := BuildApply(res, testOptions())
	require.NoError(t, err)

	require.Len(t, tx2.Files, len(tx1.Files))
	for i := range tx1.Files {
		assert.Equal(t, tx1.Files[i].Path, tx2.Files[i].Path)
		assert.Equal(t, tx1.Files[i].Name, tx2.Files[i].Name)
		assert.True(t, bytes.Equal(tx1.Files[i].Contents, tx2.Files[i].Contents),
			"payload %d must be byte-identical across rebuilds", i)
	}
}

func TestBuildReset(t *testing.T) {
	tx := BuildReset(testOptions())

	require.Len(t, tx.Files, 1, "reset is exactly one payload")
	f := tx.Files[0]
	assert.Equal(t, "com.apple.MobileGestalt.plist", f.Name)
	assert.Empty(t, f.Contents, "reset restores an empty cache")
	assert.True(t, tx.Reboot)
	for _, file := range tx.Files {
		assert.NotEqual(t, "Global.plist", file.Name, "reset never touches flags")
	}
}
