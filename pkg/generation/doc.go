// Package generation produces weather briefs, chat replies, research reports,
// insights and images through an OpenAI-compatible provider.
//
// Provider errors are classified with IsCapacityError so callers can tell a
// transient refusal (HTTP 429/503, quota or rate-limit messages) from a hard
// failure. Cancellation and deadlines are never capacity errors.
package generation
