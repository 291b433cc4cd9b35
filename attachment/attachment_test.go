package attachment

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "King_Black_Dragon", Sanitize("King Black Dragon"))
	assert.Equal(t, "ab", Sanitize(`a<>:"/\|?*b`))
	assert.Equal(t, "name", Sanitize(" .name. "))
	assert.Equal(t, "a_b", Sanitize("a \t b"))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, "png", ExtensionFor("image/png"))
	assert.Equal(t, "gif", ExtensionFor("image/gif"))
	assert.Equal(t, "webp", ExtensionFor("image/webp"))
	assert.Equal(t, "jpg", ExtensionFor("image/jpeg"))
	assert.Equal(t, "jpg", ExtensionFor("application/octet-stream"))
	assert.Equal(t, "jpg", ExtensionFor(""))
}

func TestSaveLayoutAndCollisions(t *testing.T) {
	root := t.TempDir()
	sink := New(root, "/uploads", nil)
	ctx := context.Background()

	url1, err := sink.Save(ctx, 42, KindDrop, "King Black Dragon", "Dragon med helm", "image/png", []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/42/drop/King_Black_Dragon/Dragon_med_helm.png", url1)

	// Same name again: disambiguated with a numeric suffix.
	url2, err := sink.Save(ctx, 42, KindDrop, "King Black Dragon", "Dragon med helm", "image/png", []byte{2})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/42/drop/King_Black_Dragon/Dragon_med_helm_1.png", url2)

	_, err = os.Stat(filepath.Join(root, "42", "drop", "King_Black_Dragon", "Dragon_med_helm_1.png"))
	assert.NoError(t, err)
}

func TestSaveWithoutSubfolder(t *testing.T) {
	root := t.TempDir()
	sink := New(root, "/uploads/", nil)

	url, err := sink.Save(context.Background(), 7, KindCA, "", "Peach Conjurer", "image/jpeg", []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/7/ca/Peach_Conjurer.jpg", url)
}

func TestSaveEmptyNameFallsBack(t *testing.T) {
	root := t.TempDir()
	sink := New(root, "/uploads", nil)

	url, err := sink.Save(context.Background(), 7, KindPet, "", "???", "image/png", []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/7/pet/image.png", url)
}
