// Package login implements the credential lifecycle and the session
// transitions of a login page.
//
// Credentials:
//   - Password hashes are bound to the mail address. The hasher first
//     computes HMAC-SHA256(pepper, mail || 0 || password) and then hashes
//     that digest with bcrypt or argon2id, so a hash never verifies once
//     the mail changes. SetMail therefore rebinds mail and hash in one
//     compare-and-swap UPDATE.
//   - HashPool bounds concurrent hashing and honors context deadlines.
//
// Controller:
//   - Controller.Handle evaluates login, logout, change mail, change
//     password and change language submissions in that order, returning
//     Effects (a redirect or the view data). Validation failures become
//     notify notifications, infrastructure failures are returned.
//   - Unknown usernames and wrong passwords produce the same notification.
//
// Sessions and notifications live in the session and notify packages.
// HTTPHandler wires everything to a fiber router.
package login
