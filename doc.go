// Package slackrelay provides a Slack interactivity relay for Go.
//
// Slack expects an answer within three seconds, while the systems that act
// on button clicks and modal submissions are often slower. A Bridge sits in
// between: it verifies the Slack signature, acknowledges the request with an
// empty 200 immediately, drops repeats of the same action, and forwards the
// raw body downstream in the background, following redirects and retrying
// transient failures.
//
// Key features:
//   - Slack v0 request signature verification with a timestamp window
//   - Action deduplication over a memory or Redis backend
//   - Redirect-following forwarder with bounded linear backoff
//   - Dead-letter record with operator replay
//   - Deduplicated operator alerts posted to a Slack webhook
//   - Prometheus metrics and OpenTelemetry spans per forward
//
// Quick start:
//
//	b, err := slackrelay.New(
//	    slackrelay.WithSigningSecret(os.Getenv("SLACK_SIGNING_SECRET")),
//	    slackrelay.WithForwardURL(os.Getenv("GAS_WEBAPP_URL"), os.Getenv("INTERNAL_BRIDGE_SECRET")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.Handle("/", api.NewHandler(b))
package slackrelay
