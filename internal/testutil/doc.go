// Package testutil contains helper builders and stubs used across tests to
// reduce boilerplate when constructing sessions, agents and understanders.
// They are not intended for production usage.
package testutil
