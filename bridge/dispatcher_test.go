package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateSignal(t *testing.T) {
	assert.Equal(t, "comfoconnect_update_abc_274", UpdateSignal("abc", 274))
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()

	var a, b []any
	disconnectA := d.Connect("s", func(v any) { a = append(a, v) })
	d.Connect("s", func(v any) { b = append(b, v) })
	d.Connect("other", func(v any) { t.Fatalf("unexpected value %v", v) })

	d.Send("s", 1)
	disconnectA()
	d.Send("s", 2)
	d.Send("nobody", 3)

	assert.Equal(t, []any{1}, a)
	assert.Equal(t, []any{1, 2}, b)
}

func TestDispatcherDisconnectTwice(t *testing.T) {
	d := NewDispatcher()

	disconnect := d.Connect("s", func(any) {})
	disconnect()
	disconnect()

	assert.Empty(t, d.handlers)
}
