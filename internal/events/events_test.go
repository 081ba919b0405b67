package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorderCapturesInOrder(t *testing.T) {
	recorder := &Recorder{}

	recorder.Emit(Event{Type: TypeOrderCreated, OrderID: "order-1"})
	recorder.Emit(Event{Type: TypeOrderClosed, OrderID: "order-1"})

	emitted := recorder.Events()
	assert.Len(t, emitted, 2)
	assert.Equal(t, TypeOrderCreated, emitted[0].Type)
	assert.Equal(t, TypeOrderClosed, emitted[1].Type)
}

func TestRecorderReturnsCopy(t *testing.T) {
	recorder := &Recorder{}
	recorder.Emit(Event{Type: TypeMoneyBoxPayment, OrderID: "box-1"})

	first := recorder.Events()
	first[0].OrderID = "tampered"

	assert.Equal(t, "box-1", recorder.Events()[0].OrderID)
}

func TestNoopEmitterDoesNothing(t *testing.T) {
	// Just must not panic
	NoopEmitter{}.Emit(Event{Type: TypeOrderCancelled})
}
