// Package sms contains the SMS gateway adapters and the provider registry.
//
// Adapters are split into individual files:
//   - twilio.go:         Twilio Messages API (single send)
//   - africastalking.go: Africa's Talking bulk messaging (per-recipient results)
//   - smsportal.go:      SMSPortal BulkMessages (aggregate results)
//   - bulksms.go:        BulkSMS JSON REST API (per-recipient results)
//   - clickatell.go:     Clickatell Platform API (single send)
//   - winsms.go:         WinSMS REST API (aggregate results)
//   - registry.go:       builds the configured set from credentials
//
// Every adapter maps gateway rejections to a failed domain.SendResult and
// returns an error only for transport failures (connection refused, timeout,
// unreadable body). Adapters never retry on their own.
package sms
