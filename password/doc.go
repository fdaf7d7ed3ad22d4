// Package password hashes and verifies passwords with argon2id.
//
// Hashes use the PHC string layout:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters so the
// caller can upgrade them after a successful login. [Hasher.VerifyDummy] burns
// the same work as a real verification and is used when no account matches an
// identifier.
package password
