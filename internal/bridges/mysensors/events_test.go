package mysensors

import (
	"reflect"
	"testing"
)

func TestEventBusRegistrationOrder(t *testing.T) {
	bus := NewEventBus()
	var got []string

	bus.Subscribe(EventNodeCreated, func(Event) { got = append(got, "a") })
	bus.SubscribeAll(func(Event) { got = append(got, "b") })
	bus.Subscribe(EventNodeCreated, func(Event) { got = append(got, "c") })
	bus.Subscribe(EventSensorCreated, func(Event) { got = append(got, "x") })

	bus.Publish(Event{Kind: EventNodeCreated})

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("handlers ran as %v, want %v", got, want)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	calls := 0

	unsubscribe := bus.Subscribe(EventConnected, func(Event) { calls++ })
	bus.Publish(Event{Kind: EventConnected})
	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Kind: EventConnected})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if n := bus.HandlerCount(EventConnected); n != 0 {
		t.Errorf("HandlerCount() = %d, want 0", n)
	}
}

func TestEventBusUnsubscribeDuringPublish(t *testing.T) {
	bus := NewEventBus()
	var got []string

	var unsubscribeB func()
	bus.SubscribeAll(func(Event) {
		got = append(got, "a")
		unsubscribeB()
	})
	unsubscribeB = bus.SubscribeAll(func(Event) { got = append(got, "b") })

	bus.Publish(Event{Kind: EventConnected})
	bus.Publish(Event{Kind: EventConnected})

	if want := []string{"a", "b", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("handlers ran as %v, want %v", got, want)
	}
}

func TestEventBusRecoversPanics(t *testing.T) {
	bus := NewEventBus()
	reached := false

	bus.SubscribeAll(func(Event) { panic("handler bug") })
	bus.SubscribeAll(func(Event) { reached = true })

	bus.Publish(Event{Kind: EventDisconnected})

	if !reached {
		t.Error("handler after a panicking handler was not called")
	}
}

func TestEventBusSetsTime(t *testing.T) {
	bus := NewEventBus()
	var ev Event
	bus.SubscribeAll(func(e Event) { ev = e })

	bus.Publish(Event{Kind: EventConnected})

	if ev.Time.IsZero() {
		t.Error("Publish did not stamp the event time")
	}
}
