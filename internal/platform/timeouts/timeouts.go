// Package timeouts defines the timeout constants shared by engine listeners
// and clients.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the engine gRPC endpoint.
const GRPCDial = 2 * time.Second

// GRPCRequest caps a single unary observer call.
const GRPCRequest = 2 * time.Second

// ReadHeader limits how long the seat and lobby server waits for request
// headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
