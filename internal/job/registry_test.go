package job

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryCreateAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	j := r.Create("/tmp/in.xml", "orders.xml")

	require.NotEmpty(t, j.ID)
	require.Equal(t, StatusPending, j.Status)
	require.Equal(t, "orders.xml", j.OriginalFileName)
	require.Equal(t, "/tmp/in.xml", j.InputPath)
	require.False(t, j.CreatedAtUTC.IsZero())

	got, ok := r.Get(j.ID)
	require.True(t, ok)
	require.Equal(t, j.ID, got.ID)

	_, ok = r.Get("nope")
	require.False(t, ok)
}

func TestRegistryUpdate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	j := r.Create("/tmp/in.xml", "orders.xml")

	r.Update(j.ID, StatusRunning, "working", "")
	got, _ := r.Get(j.ID)
	require.Equal(t, StatusRunning, got.Status)
	require.Equal(t, "working", got.Message)
	require.Empty(t, got.OutputZipName)

	// Empty message keeps the previous one.
	r.Update(j.ID, StatusCompleted, "", "orders_csv.zip")
	got, _ = r.Get(j.ID)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "working", got.Message)
	require.Equal(t, "orders_csv.zip", got.OutputZipName)

	// Unknown id is a no-op.
	r.Update("nope", StatusFailed, "x", "")
}

func TestRegistryAllReturnsCopies(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Create("/tmp/a.xml", "a.xml")
	r.Create("/tmp/b.xml", "b.xml")

	all := r.All()
	require.Len(t, all, 2)

	all[0].Status = StatusFailed
	got, _ := r.Get(all[0].ID)
	require.Equal(t, StatusPending, got.Status)
}
