package client

import (
	"errors"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/registry"
)

// RegisterEvent registers action for kind, replacing any previous
// registration of the same kind.
func (c *Client) RegisterEvent(kind cengine.EventType, action cengine.EventAction, opts cengine.RegisterOptions) {
	c.events.Register(registry.Registration[cengine.EventType, *cengine.EventData]{
		Kind:             kind,
		Action:           action,
		Args:             opts.Args,
		DeleteArgs:       opts.DeleteArgs,
		RunOnGoroutine:   opts.RunOnGoroutine,
		DropAfterTrigger: opts.DropAfterTrigger,
	})
}

// UnregisterEvent removes the registration of kind.
func (c *Client) UnregisterEvent(kind cengine.EventType) error {
	if err := c.events.Unregister(kind); errors.Is(err, registry.ErrNotRegistered) {
		return cengine.ErrEventNotRegistered
	}
	return nil
}

// EventRegistered reports whether kind has a registration.
func (c *Client) EventRegistered(kind cengine.EventType) bool {
	return c.events.Registered(kind)
}

// RegisterError registers action for kind, replacing any previous
// registration of the same kind.
func (c *Client) RegisterError(kind cengine.ErrorType, action cengine.ErrorAction, opts cengine.RegisterOptions) {
	c.errors.Register(registry.Registration[cengine.ErrorType, *cengine.ErrorData]{
		Kind:             kind,
		Action:           action,
		Args:             opts.Args,
		DeleteArgs:       opts.DeleteArgs,
		RunOnGoroutine:   opts.RunOnGoroutine,
		DropAfterTrigger: opts.DropAfterTrigger,
	})
}

// UnregisterError removes the registration of kind.
func (c *Client) UnregisterError(kind cengine.ErrorType) error {
	if err := c.errors.Unregister(kind); errors.Is(err, registry.ErrNotRegistered) {
		return cengine.ErrErrorNotRegistered
	}
	return nil
}

// ErrorRegistered reports whether kind has a registration.
func (c *Client) ErrorRegistered(kind cengine.ErrorType) bool {
	return c.errors.Registered(kind)
}

// WaitActions blocks until every event and error action started on its own
// goroutine has returned.
func (c *Client) WaitActions() {
	c.events.Wait()
	c.errors.Wait()
}

func (c *Client) triggerEvent(kind cengine.EventType, conn *Connection, response any) {
	c.events.Trigger(kind, func(args any) *cengine.EventData {
		data := &cengine.EventData{Client: c, Args: args, Response: response}
		if conn != nil {
			data.Connection = conn
		}
		return data
	})
}

// triggerError reports false when no action handles kind.
func (c *Client) triggerError(kind cengine.ErrorType, conn *Connection, message string) bool {
	return c.errors.Trigger(kind, func(args any) *cengine.ErrorData {
		data := &cengine.ErrorData{Client: c, Args: args, Message: message}
		if conn != nil {
			data.Connection = conn
		}
		return data
	})
}
