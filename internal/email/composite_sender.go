package email

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSenders is returned by an empty CompositeEmailSender.
var ErrNoSenders = errors.New("no email senders configured")

// CompositeEmailSender fans one message out to every delivery channel, so a
// notification can go to SMTP and the local email log at the same time.
type CompositeEmailSender struct {
	senders []Sender
}

func NewCompositeEmailSender(senders ...Sender) *CompositeEmailSender {
	cs := &CompositeEmailSender{}
	for _, s := range senders {
		cs.AddSender(s)
	}
	return cs
}

// AddSender ignores nil senders.
func (cs *CompositeEmailSender) AddSender(sender Sender) {
	if sender != nil {
		cs.senders = append(cs.senders, sender)
	}
}

// Send tries every sender, even after one fails. A message counts as
// delivered only when all of them succeed, which makes asynq retry the
// enquiry notification otherwise.
func (cs *CompositeEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if len(cs.senders) == 0 {
		return ErrNoSenders
	}
	kind := headerValue(rawMessage, KindHeader)

	var errs []error
	for i, sender := range cs.senders {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := sender.Send(ctx, to, subject, rawMessage); err != nil {
			errs = append(errs, fmt.Errorf("sender %d (%T): %w", i, sender, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("send %q email: %w", kind, err)
	}
	return nil
}
