package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVStartsWithBOM(t *testing.T) {
	data, err := CSV([]Column{{Key: "a", Title: "A"}}, nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
}

func TestCSVRendersRowsInColumnOrder(t *testing.T) {
	columns := []Column{
		{Key: "ref", Title: "Client Ref"},
		{Key: "payment", Title: "Payment Type"},
		{Key: "amount", Title: "Amount"},
	}
	rows := []map[string]string{
		{"ref": "ORD-1", "payment": "оплачено", "amount": "120.50"},
		{"ref": "ORD-2", "amount": "99"}, // missing key renders empty
	}

	data, err := CSV(columns, rows)
	require.NoError(t, err)

	body := strings.TrimPrefix(string(data), "\xEF\xBB\xBF")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Client Ref,Payment Type,Amount", strings.TrimSpace(lines[0]))
	assert.Equal(t, "ORD-1,оплачено,120.50", strings.TrimSpace(lines[1]))
	assert.Equal(t, "ORD-2,,99", strings.TrimSpace(lines[2]))
}
