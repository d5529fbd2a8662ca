// Package branding centralizes product naming shown to users.
package branding

// AppName is the user-facing product name.
const AppName = "WalletGate"
