// Package webhook implements the Notion webhook endpoint with HMAC-SHA256
// verification and event dispatch.
//
// # Trust establishment
//
// Notion establishes trust in two phases. First it delivers a one-time
// verification payload carrying a verification_token; that delivery is
// inherently unsigned, since it is the mechanism that establishes the secret.
// Every subsequent delivery is signed: the X-Notion-Signature header carries
// "sha256=<hex>" of HMAC-SHA256(token, raw body). A later handshake fully
// replaces the earlier secret (e.g. after a redeploy).
//
// # Request flow
//
//  1. HTTP POST arrives at the configured path
//  2. Body size checked (reject with 413 if too large)
//  3. Body classified: handshake payloads store the secret and return 200
//  4. Signature header extracted and verified with constant-time comparison
//     (reject with 401 if missing or mismatched; also 401 when no secret is
//     available at all, since verification fails closed)
//  5. Event shape validated (entity.type, entity.id, type); shape-invalid
//     but authenticated payloads are logged and acknowledged with 200 so the
//     sender does not retry
//  6. Event dispatched by entity type; page events feed the reconciliation
//     engine
//  7. 200 acknowledgement returned; only an entity fetch failure yields 500
//
// # Error responses
//
//   - 400 Bad Request: unparseable JSON body
//   - 401 Unauthorized: missing or invalid signature
//   - 413 Payload Too Large: body exceeds the configured limit
//   - 500 Internal Server Error: the referenced entity could not be fetched
package webhook
