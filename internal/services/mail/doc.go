// Package mail provides the mailbox REST client and the outbound message
// dispatcher. The client paces requests and honors the server's rate limits;
// the dispatcher owns the wording of every reply the automation sends.
package mail
