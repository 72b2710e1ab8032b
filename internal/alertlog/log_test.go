package alertlog

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

func alerts(ids ...string) []data.Alert {
	out := make([]data.Alert, len(ids))
	for i, id := range ids {
		out[i] = data.Alert{ID: id, Severity: data.SeverityWarning, Message: "msg " + id}
	}
	return out
}

func ids(as []data.Alert) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func TestAppend_NewestFirst(t *testing.T) {
	l := New(10)
	l.Append(alerts("a", "b"))
	l.Append(alerts("c"))

	assert.Equal(t, []string{"c", "a", "b"}, ids(l.Snapshot()))
}

func TestAppend_DeduplicatesByID(t *testing.T) {
	l := New(10)
	l.Append(alerts("a", "b"))

	added := l.Append(alerts("b", "c", "c"))

	assert.Equal(t, []string{"c"}, ids(added))
	assert.Equal(t, []string{"c", "a", "b"}, ids(l.Snapshot()))
	assert.Nil(t, l.Append(alerts("a")))
}

func TestAppend_TruncatesToCapacity(t *testing.T) {
	l := New(3)
	l.Append(alerts("a", "b"))
	l.Append(alerts("c", "d"))

	assert.Equal(t, []string{"c", "d", "a"}, ids(l.Snapshot()))
	assert.Equal(t, 3, l.Len())
}

func TestAppend_InvariantsUnderRandomLoad(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l := New(20)

	for i := 0; i < 500; i++ {
		batch := make([]string, rng.Intn(5))
		for j := range batch {
			batch[j] = fmt.Sprintf("id-%d", rng.Intn(60))
		}
		l.Append(alerts(batch...))

		snap := l.Snapshot()
		require.LessOrEqual(t, len(snap), 20)
		seen := map[string]bool{}
		for _, a := range snap {
			require.False(t, seen[a.ID], "duplicate %s", a.ID)
			seen[a.ID] = true
		}
	}
}

func TestClear(t *testing.T) {
	l := New(5)
	l.Clear()
	assert.Empty(t, l.Snapshot())

	l.Append(alerts("a", "b"))
	l.Clear()
	assert.Empty(t, l.Snapshot())
	assert.Equal(t, 0, l.Len())

	l.Clear()
	assert.Empty(t, l.Snapshot())
}

func TestRestore(t *testing.T) {
	l := New(2)
	l.Append(alerts("x"))
	l.Restore(alerts("a", "b", "c"))

	assert.Equal(t, []string{"a", "b"}, ids(l.Snapshot()))
}

func TestSnapshot_IsACopy(t *testing.T) {
	l := New(5)
	l.Append(alerts("a"))
	snap := l.Snapshot()
	snap[0].ID = "mutated"

	assert.Equal(t, "a", l.Snapshot()[0].ID)
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
}
