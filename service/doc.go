// Package service carries boundary envelopes over NATS request/reply.
//
// A Service subscribes to "<prefix>.decompile" and "<prefix>.assemble" in
// queue group "<prefix>" and replies with the response envelope produced by
// its Exchanger. When the exchange itself fails, for example with a negative
// status, the reply is a failure envelope with file_path "unknown".
//
// Remote is the matching client: it implements Exchanger by sending the
// request to the same subjects.
package service
