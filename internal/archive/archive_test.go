package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFolders(t *testing.T) {
	f := NewFolders("out", "@durov")
	assert.Equal(t, filepath.Join("out", "durov"), f.Target)
	assert.Equal(t, filepath.Join("out", "durov", "avatars"), f.Avatars)
	assert.Equal(t, filepath.Join("out", "durov", "participants_avatars"), f.ParticipantsAvatars)
	assert.Equal(t, filepath.Join("out", "durov", "media"), f.Media)
	assert.Equal(t, filepath.Join("out", "durov", "jsons", "messages.json"), f.JSONPath(MessagesFile))
}

func TestFolders_Create(t *testing.T) {
	f := NewFolders(t.TempDir(), "group")
	require.NoError(t, f.Create())
	for _, dir := range []string{f.Avatars, f.ParticipantsAvatars, f.Media, f.Jsons} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	// 重复创建不报错
	require.NoError(t, f.Create())
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	path, err := Dump(dir, "target_info", map[string]any{"title": "Привет <мир>", "id": 1})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "target_info.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Привет <мир>")
	assert.Contains(t, string(data), "\n    \"id\": 1")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
