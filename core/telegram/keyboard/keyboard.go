// Package keyboard builds reply and inline markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is one inline button; Unique routes the press, Data is its payload.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Hide asks the client to drop the current reply keyboard.
func Hide() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// Reply lays out labels as a resizable reply keyboard, one slice per row.
// Empty rows are skipped; nil is returned when no label remains.
func Reply(rows ...[]string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	var out []tele.Row
	for _, labels := range rows {
		if len(labels) == 0 {
			continue
		}
		row := make(tele.Row, len(labels))
		for i, l := range labels {
			row[i] = m.Text(l)
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil
	}
	m.Reply(out...)
	return m
}

// Column stacks buttons one per row.
func Column(buttons ...Button) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.InlineKeyboard = make([][]tele.InlineButton, len(buttons))
	for i, b := range buttons {
		m.InlineKeyboard[i] = []tele.InlineButton{*m.Data(b.Text, b.Unique, b.Data).Inline()}
	}
	return m
}
