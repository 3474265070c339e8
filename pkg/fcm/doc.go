/*
Package fcm implements order-k finite-context (Markov) models over symbol
sequences, such as DNA nucleotides or arbitrary UTF-8 text.

A Model accumulates context->symbol counts while it is in its learning
state, and answers Laplace-smoothed next-symbol probability queries either
on demand or from a frozen probability table after Lock. On top of the
probability surface it offers stochastic sequence generation and
information-content (entropy) metrics, and serializes losslessly to a JSON
or compact binary (CBOR) document.

Two context-resolution strategies are available: the default fixed-order
model, which only ever consults contexts of exactly length k, and the
recursive backoff variant (WithBackoff), which keeps one table per context
length 1..k and answers queries from the longest context with data.
*/
package fcm
