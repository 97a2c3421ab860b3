package middleware

import (
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const countersSlot = "regbot.counters"

// Counters tracks what a handler sent in reply to one update.
type Counters struct {
	messages atomic.Int32
	keyboard atomic.Bool
}

func (k *Counters) Messages() int  { return int(k.messages.Load()) }
func (k *Counters) Keyboard() bool { return k.keyboard.Load() }

func (k *Counters) record(err error, opts []any) {
	if err != nil {
		return
	}
	k.messages.Add(1)
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				k.keyboard.Store(true)
			}
		case *tele.ReplyMarkup:
			if v != nil {
				k.keyboard.Store(true)
			}
		}
	}
}

// countingContext observes the outgoing calls handlers make.
type countingContext struct {
	tele.Context
	counters *Counters
}

func (c countingContext) Send(what any, opts ...any) error {
	err := c.Context.Send(what, opts...)
	c.counters.record(err, opts)
	return err
}

func (c countingContext) Reply(what any, opts ...any) error {
	err := c.Context.Reply(what, opts...)
	c.counters.record(err, opts)
	return err
}

func (c countingContext) Edit(what any, opts ...any) error {
	err := c.Context.Edit(what, opts...)
	c.counters.record(err, opts)
	return err
}

func (c countingContext) EditOrSend(what any, opts ...any) error {
	err := c.Context.EditOrSend(what, opts...)
	c.counters.record(err, opts)
	return err
}

// CountReplies attaches fresh Counters to every update.
func CountReplies(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		k := &Counters{}
		c.Set(countersSlot, k)
		return next(countingContext{Context: c, counters: k})
	}
}

// CountersOf returns the update's counters; zero counters when none were attached.
func CountersOf(c tele.Context) *Counters {
	if k, ok := c.Get(countersSlot).(*Counters); ok {
		return k
	}
	return &Counters{}
}
