package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCursorPageInfo(t *testing.T) {
	ids := []string{"5", "4", "3"}
	items := make([]*string, 0, len(ids))
	for i := range ids {
		items = append(items, &ids[i])
	}

	info := BuildCursorPageInfo(items, 2, func(s *string) string { return *s })
	assert.True(t, info.HasMore)
	assert.Equal(t, "4", info.NextPageToken)

	info = BuildCursorPageInfo(items, 3, func(s *string) string { return *s })
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestCursorEncoding(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)

	_, err = DecodeCursor("not base64 !")
	assert.Error(t, err)
}
