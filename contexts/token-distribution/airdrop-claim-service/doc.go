// Package airdropclaimservice implements Merkle-root airdrop claims.
//
// An account proves eligibility for (account, amount) against the committed root,
// is added to the claimed set, and is paid out by a two-step saga against the token
// ledger: recipient registration, then transfer. A failed step rolls the saga back
// and removes the account from the claimed set so it may claim again.
package airdropclaimservice
