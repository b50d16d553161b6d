// Package wakeup implements the notifications engines use to interrupt a
// blocked wait, when another domain hands them mail.
package wakeup
