package testutil_test

import (
	"os"
	"strings"
	"testing"

	"github.com/paveg/ecomlake/internal/dataframe"
	"github.com/paveg/ecomlake/internal/series"
	"github.com/paveg/ecomlake/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupMemoryTest(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	df := dataframe.New(series.New("order_id", []string{"o1", "o2"}, mem.Allocator))
	defer df.Release()

	testutil.AssertDataFrameNotEmpty(t, df)
	testutil.AssertDataFrameHasColumns(t, df, []string{"order_id"})
}

func TestWriteOlist(t *testing.T) {
	dir := t.TempDir()
	files := testutil.WriteOlist(t, dir,
		[]testutil.Order{testutil.DeliveredOrder("o1", "2024-01-05 10:00:00", "2024-01-10 12:00:00")},
		[]testutil.Item{testutil.SimpleItem("o1", "P1", "100.0")},
	)

	orders, err := os.ReadFile(files.Orders)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(orders)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(testutil.OrdersHeader, ","), lines[0])
	assert.Equal(t, "o1,c-o1,delivered,2024-01-05 10:00:00,2024-01-05 10:00:00,2024-01-05 10:00:00,2024-01-10 12:00:00,2024-01-10 12:00:00", lines[1])

	items, err := os.ReadFile(files.Items)
	require.NoError(t, err)
	assert.Contains(t, string(items), "o1,1,P1,s1,2024-01-01 00:00:00,100.0,10.0")
}

func TestNewTestLogger(t *testing.T) {
	logger := testutil.NewTestLogger(t)
	logger.Info("fixture ready", "rows", 1)
}
