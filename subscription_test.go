package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryAllocateAssignsIncreasingSids(t *testing.T) {
	r := newRegistry()
	a := r.allocate("foo", "", 1)
	b := r.allocate("bar", "", 1)
	assert.Equal(t, uint64(1), a.sid)
	assert.Equal(t, uint64(2), b.sid)
}

func TestRegistryGetAndRemove(t *testing.T) {
	r := newRegistry()
	sub := r.allocate("foo", "", 1)

	assert.Same(t, sub, r.get(sub.sid))

	removed := r.remove(sub.sid)
	assert.Same(t, sub, removed)
	assert.Nil(t, r.get(sub.sid))
	assert.Nil(t, r.remove(sub.sid))
}

func TestRegistryMarkAllUninstalled(t *testing.T) {
	r := newRegistry()
	sub := r.allocate("foo", "", 1)
	sub.installed = true

	r.markAllUninstalled()
	assert.False(t, sub.installed)
}

func TestSubProtoLineFormatsQueueOptionally(t *testing.T) {
	assert.Equal(t, "SUB foo.bar 3\r\n", subProtoLine("foo.bar", "", 3))
	assert.Equal(t, "SUB foo.bar workers 3\r\n", subProtoLine("foo.bar", "workers", 3))
}

func TestUnsubProtoLineFormatsMaxMsgsOptionally(t *testing.T) {
	assert.Equal(t, "UNSUB 3\r\n", unsubProtoLine(3, 0))
	assert.Equal(t, "UNSUB 3 5\r\n", unsubProtoLine(3, 5))
}

func TestUnsubscribeOnDetachedSubscriptionReturnsFalse(t *testing.T) {
	sub := &Subscription{sid: 1}
	assert.False(t, sub.Unsubscribe())
}
