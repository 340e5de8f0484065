// Package sender provides the outbound delivery clients: SMTP and SES email
// senders plus an HTTP SMS gateway client. Each sender returns the provider
// message id on success.
package sender
