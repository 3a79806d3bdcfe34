// Package tracing wires optional Langfuse tracing into the eino callback
// system so recommend model calls show up as traces.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// DefaultHost is the Langfuse endpoint used when LANGFUSE_HOST is unset.
const DefaultHost = "https://cloud.langfuse.com"

// Setup builds the Langfuse callback handler when LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are both set. The flush func must run before exit so
// buffered traces are sent. ok is false when tracing is not configured, in
// which case handler and flush are nil.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}

	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = DefaultHost
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
	})
	return handler, flush, true
}
