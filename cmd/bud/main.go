// Bud is a command-line client for the Bud inference gateway.
//
// Usage:
//
//	# Send a chat prompt (streams by default)
//	bud chat "explain goroutines in one paragraph"
//
//	# Non-streaming
//	bud chat --no-stream "hello"
//
//	# List available models
//	bud models
//
//	# Persist defaults
//	bud config set model llama-3.1-8b
//
//	# Show version information
//	bud version
//
// Credentials come from BUD_API_KEY / BUD_BASE_URL (a .env file in the
// working directory is loaded if present) or from the config file.
package main

func main() {
	Execute()
}
