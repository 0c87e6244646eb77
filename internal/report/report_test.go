package report

import (
	"errors"
	"sync"
	"testing"

	honeybadger "github.com/honeybadger-io/honeybadger-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notice struct {
	err   interface{}
	extra []interface{}
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notice
	err     error
}

func (f *fakeNotifier) Notify(err interface{}, extra ...interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice{err: err, extra: extra})
	return "id", f.err
}

func TestFromEnv_DisabledWithoutKey(t *testing.T) {
	t.Setenv("HONEYBADGER_API_KEY", "")

	r := FromEnv()
	assert.False(t, r.Enabled())

	// no-ops
	r.RefreshFailed("octo", errors.New("boom"))
	r.Flush()
}

func TestNilReporterIsDisabled(t *testing.T) {
	var r *Reporter
	assert.False(t, r.Enabled())
	r.Notify(errors.New("boom"))
}

func TestRefreshFailed(t *testing.T) {
	n := &fakeNotifier{}
	r := New(n)
	require.True(t, r.Enabled())

	boom := errors.New("boom")
	r.RefreshFailed("octo", boom)

	require.Len(t, n.notices, 1)
	assert.Equal(t, boom, n.notices[0].err)
	require.Len(t, n.notices[0].extra, 2)
	assert.Equal(t, honeybadger.Context{"device": "octo"}, n.notices[0].extra[0])
	assert.Equal(t, honeybadger.Tags{"refresh", "device"}, n.notices[0].extra[1])
}

func TestNotify_SwallowsNotifierErrors(t *testing.T) {
	n := &fakeNotifier{err: errors.New("backend down")}
	r := New(n)

	assert.NotPanics(t, func() { r.Notify("message") })
	assert.Len(t, n.notices, 1)
}
