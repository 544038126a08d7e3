package identity

import "context"

// Notification is a best-effort message to an account holder. Delivery
// failures never roll back the operation that produced them.
type Notification struct {
	Email    string
	Subject  string
	Body     string
	Metadata map[string]any
}

// Notifier is the fire-and-forget side-effect sink for account messages
// (reset links, activation links, password-changed notices).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// logNotifier prints notifications, useful in development.
type logNotifier struct {
	logger Logger
}

// NewLogNotifier returns a Notifier that writes through the given logger.
func NewLogNotifier(logger Logger) Notifier {
	if logger == nil {
		logger = defLogger{}
	}
	return logNotifier{logger: logger}
}

func (l logNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("notification", "to", n.Email, "subject", n.Subject)
	return nil
}
