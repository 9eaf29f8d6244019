// Package pipeline advances one story job through text generation, metadata
// extraction, cover rendering and upload, persisting progress after every
// stage. A failure at any point after the story is loaded marks it failed and
// refunds its credit cost exactly once; nothing is retried.
package pipeline
