// Package password is the default credential hasher: Argon2id in PHC string format.
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// It hashes both user passwords and optional quiz access passwords. The engine only sees
// the Hash/Verify pair; parameters are fixed at construction.
package password
