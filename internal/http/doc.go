// Package http provides HTTP handlers and middleware for the booking pipeline.
//
// The router exposes the following endpoints:
//   - POST /webhooks/payments: inbound gateway notification. Body:
//     {"gatewayPaymentId","status","paidAmountCents?","paidAt?"}, authenticated by
//     the `X-Signature` header carrying the hex keyed BLAKE2b-256 MAC of the body.
//     Replays and late payments on expired transactions are acknowledged with 200.
//   - GET /businesses/{businessID}/services/{serviceID}/slots?from=YYYY-MM-DD&to=YYYY-MM-DD:
//     free start instants of a service.
//   - POST /appointments, POST /appointments/{id}/reschedule, /cancel, /start and
//     /complete: appointment commands exchanging the payloads in appointment_handler.go.
//   - GET /businesses/{businessID}/wallet, GET .../wallet/entries and
//     POST .../wallet/withdrawals: wallet queries and payouts for operators.
//   - GET /transactions/{id}, POST /transactions/{id}/cancel, /refund and
//     /refund/complete: fee transaction queries and operator commands.
//
// Every endpoint except the webhook, the slot listing and the health probe
// requires the trusted upstream headers `X-Actor-ID`, `X-Actor-Role`
// (customer or operator) and, for operators, `X-Actor-Business`.
package http
